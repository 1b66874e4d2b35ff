package bridge

import (
	_ "embed"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

var messages = func() map[string]string {
	m := make(map[string]string)
	if err := yaml.Unmarshal(messagesYAML, &m); err != nil {
		panic("bridge: embedded message table is invalid: " + err.Error())
	}
	return m
}()

// Lookup returns the player-facing string for key. Unknown keys return the
// key itself so a missing translation degrades visibly, not silently.
func Lookup(key string) string {
	if v, ok := messages[key]; ok {
		return v
	}
	return key
}
