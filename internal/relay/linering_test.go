package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLineRing_KeepsLastLines(t *testing.T) {
	r := newLineRing(3)
	_, _ = r.Write([]byte("one\ntwo\nthree\nfour\n"))
	assert.Equal(t, []string{"two", "three", "four"}, r.LastN(10))
	assert.Equal(t, []string{"four"}, r.LastN(1))
}

func TestLineRing_JoinsSplitWrites(t *testing.T) {
	r := newLineRing(4)
	_, _ = r.Write([]byte("par"))
	_, _ = r.Write([]byte("tial line\r\n"))
	_, _ = r.Write([]byte("second\n"))
	assert.Equal(t, []string{"partial line", "second"}, r.LastN(10))
}

func TestLineRing_EmptyAndBlankLines(t *testing.T) {
	r := newLineRing(4)
	assert.Empty(t, r.LastN(5))
	_, _ = r.Write([]byte("\n\nx\n\n"))
	assert.Equal(t, []string{"x"}, r.LastN(5))
}
