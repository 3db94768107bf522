package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstSkipsBlankValues(t *testing.T) {
	t.Setenv("ENV_TEST_BLANK", "   ")
	t.Setenv("ENV_TEST_SET", " value ")

	assert.Equal(t, "value", First("fallback", "ENV_TEST_MISSING", "ENV_TEST_BLANK", "ENV_TEST_SET"))
	assert.Equal(t, "fallback", First("fallback", "ENV_TEST_BLANK"))
	assert.Equal(t, "fallback", Get("ENV_TEST_MISSING", "fallback"))
}
