package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/taskloop/core"
)

func TestInstructionsFromText(t *testing.T) {
	ins := InstructionsFromText("Always answer in French.")

	assert.False(t, ins.IsZero())

	msgs := ins.SystemMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "Always answer in French.", msgs[0].Text())
}

func TestInstructionsFromTextEmpty(t *testing.T) {
	ins := InstructionsFromText("")

	assert.True(t, ins.IsZero())
	assert.Empty(t, ins.SystemMessages())
}

func TestInstructionsFromMessageRetagsRole(t *testing.T) {
	ins := InstructionsFromMessage(core.NewTextContent("user", "Be terse."))

	msgs := ins.SystemMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "Be terse.", msgs[0].Text())
}

func TestInstructionsFromMessagesPreservesOrder(t *testing.T) {
	ins := InstructionsFromMessages([]core.Content{
		core.NewTextContent("assistant", "First rule."),
		core.NewTextContent("user", "Second rule."),
		core.NewTextContent("system", "Third rule."),
	})

	msgs := ins.SystemMessages()
	require.Len(t, msgs, 3)

	for i, want := range []string{"First rule.", "Second rule.", "Third rule."} {
		assert.Equal(t, "system", msgs[i].Role)
		assert.Equal(t, want, msgs[i].Text())
	}
}

func TestInstructionsSystemMessagesReturnsCopy(t *testing.T) {
	ins := InstructionsFromText("Immutable.")

	msgs := ins.SystemMessages()
	msgs[0] = core.NewTextContent("system", "Mutated.")

	assert.Equal(t, "Immutable.", ins.SystemMessages()[0].Text())
}

func TestZeroInstructions(t *testing.T) {
	var ins Instructions

	assert.True(t, ins.IsZero())
	assert.Empty(t, ins.SystemMessages())
}
