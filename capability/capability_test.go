package capability

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableMatchesSentinel(t *testing.T) {
	err := Unavailable(HTTP, "request")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsUnavailable(err))
	assert.Equal(t, "http request: capability unavailable", err.Error())
}

func TestUnavailableSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("guest call: %w", Unavailable(TTY, ""))

	var ue *UnavailableError
	assert.True(t, errors.As(err, &ue))
	assert.Equal(t, TTY, ue.Capability)
	assert.Equal(t, "guest call: tty: capability unavailable", err.Error())
}

func TestOtherErrorsAreNotUnavailable(t *testing.T) {
	assert.False(t, IsUnavailable(errors.New("connection refused")))
	assert.False(t, IsUnavailable(nil))
}
