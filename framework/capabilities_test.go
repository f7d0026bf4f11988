package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilitiesHas(t *testing.T) {
	caps := Capabilities{"tcp", "ws"}
	assert.True(t, caps.Has("tcp"))
	assert.False(t, caps.Has("quic"))
	assert.False(t, Capabilities(nil).Has("tcp"))
}

func TestCapabilitiesIntersect(t *testing.T) {
	a := Capabilities{"tcp", "ws", "quic"}
	b := Capabilities{"quic", "tcp"}

	assert.Equal(t, Capabilities{"tcp", "quic"}, a.Intersect(b), "order of the receiver is preserved")
	assert.Empty(t, a.Intersect(Capabilities{"webtransport"}))
	assert.Empty(t, Capabilities(nil).Intersect(a))
}
