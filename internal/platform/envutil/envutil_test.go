package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Setenv("BB_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, Duration("BB_TEST_DUR", time.Second))

	t.Setenv("BB_TEST_DUR", "15")
	assert.Equal(t, 15*time.Second, Duration("BB_TEST_DUR", time.Second))

	t.Setenv("BB_TEST_DUR", "soon")
	assert.Equal(t, time.Second, Duration("BB_TEST_DUR", time.Second))
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("BB_TEST_BOOL", "on")
	assert.True(t, Bool("BB_TEST_BOOL", false))
	t.Setenv("BB_TEST_BOOL", "maybe")
	assert.False(t, Bool("BB_TEST_BOOL", false))

	t.Setenv("BB_TEST_INT", "x")
	assert.Equal(t, 4, Int("BB_TEST_INT", 4))
}
