package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonBlockingSend(t *testing.T) {
	ch := make(chan int, 1)
	assert.True(t, NonBlockingSend(ch, 1))
	assert.False(t, NonBlockingSend(ch, 2)) // channel is full
	assert.Equal(t, 1, <-ch)
}

func TestTryReceiveWithValue(t *testing.T) {
	ch := make(chan string, 1)
	ch <- "hello"
	m := TryReceive(ch, time.Second)
	assert.True(t, m.IsDefined())
	assert.Equal(t, "hello", m.Value())
}

func TestTryReceiveTimeout(t *testing.T) {
	ch := make(chan string)
	m := TryReceive(ch, time.Millisecond*20)
	assert.False(t, m.IsDefined())
}
