package radiko

// State tracks the auth session lifecycle. Only StateReady exposes a valid
// token; callers arriving during StateRefreshing wait on the in-flight
// handshake.
type State int

const (
	StateUninitialized State = iota
	StateHandshaking
	StateReady
	StateRefreshing
	StateFailed
)

// String returns the lowercase state name for logging.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
