package cancel

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func confirmCancelFromString(input string) bool {
	return confirmCancel(bufio.NewReader(strings.NewReader(input)))
}

func TestToken_NotCancelledInitially(t *testing.T) {
	token := New()
	assert.False(t, token.IsCancelled())

	select {
	case <-token.Cancelled():
		t.Fatal("token should not be cancelled yet")
	default:
	}
}

func TestToken_CancelTransitions(t *testing.T) {
	token := New()
	token.Cancel()

	assert.True(t, token.IsCancelled())

	select {
	case <-token.Cancelled():
	case <-time.After(time.Second):
		t.Fatal("Cancelled channel should be closed after Cancel")
	}
}

func TestToken_CancelIsIdempotent(t *testing.T) {
	token := New()
	assert.NotPanics(t, func() {
		token.Cancel()
		token.Cancel()
		token.Cancel()
	})
	assert.True(t, token.IsCancelled())
}

func TestConfirmCancel_YesVariants(t *testing.T) {
	assert.True(t, confirmCancelFromString("y\n"))
	assert.True(t, confirmCancelFromString("Y\n"))
	assert.True(t, confirmCancelFromString("yes\n"))
}

func TestConfirmCancel_NoVariants(t *testing.T) {
	assert.False(t, confirmCancelFromString("n\n"))
	assert.False(t, confirmCancelFromString("\n"))
	assert.False(t, confirmCancelFromString("anything else\n"))
}
