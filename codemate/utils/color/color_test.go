package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisable(t *testing.T) {
	Disable()
	assert.Equal(t, "hello", ColorAssistant("hello"))
	assert.Equal(t, "err", ColorError("err"))
	assert.Equal(t, "12:00", ColorMuted("12:00"))
}
