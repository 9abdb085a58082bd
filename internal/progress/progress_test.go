package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewManager_DisabledIsNoOp(t *testing.T) {
	m := NewManager(false)
	assert.False(t, m.IsInteractive())
	task := m.StartTask("capturing", 3)
	task.Increment(1)
	task.Describe("desktop /")
	task.Complete()
	m.Close()
}

func TestNewManager_CIIsNoOp(t *testing.T) {
	t.Setenv("CI", "true")
	assert.False(t, IsInteractiveEnvironment())
	assert.IsType(t, NoOpManager{}, NewManager(true))
}

func TestBarManager_Draws(t *testing.T) {
	var buf bytes.Buffer
	m := NewBarManager(&buf)
	assert.True(t, m.IsInteractive())

	task := m.StartTask("capturing", 2)
	task.Describe("desktop /a default")
	task.Increment(1)
	task.Increment(1)
	m.Close()

	assert.NotZero(t, buf.Len())
}
