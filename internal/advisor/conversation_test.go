package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReduce(t *testing.T) {
	empty := Conversation{}

	submitted := Reduce(empty, UserSubmitted{Content: "  how do I enable RLS?  "})
	assert.True(t, submitted.Pending)
	assert.Equal(t, []Message{{Role: RoleUser, Content: "how do I enable RLS?"}}, submitted.Messages)
	assert.Empty(t, empty.Messages)

	t.Run("ignores submissions while pending", func(t *testing.T) {
		assert.Equal(t, submitted, Reduce(submitted, UserSubmitted{Content: "again"}))
	})

	t.Run("ignores blank submissions", func(t *testing.T) {
		assert.Equal(t, empty, Reduce(empty, UserSubmitted{Content: "   "}))
	})

	t.Run("assistant reply", func(t *testing.T) {
		replied := Reduce(submitted, AssistantReplied{Content: "ALTER TABLE ..."})
		assert.False(t, replied.Pending)
		assert.Len(t, replied.Messages, 2)
		assert.Equal(t, RoleAssistant, replied.Messages[1].Role)
		assert.Len(t, submitted.Messages, 1)

		assert.Equal(t, replied, Reduce(replied, AssistantReplied{Content: "late"}))
	})

	t.Run("failure keeps user turn", func(t *testing.T) {
		failed := Reduce(submitted, RequestFailed{Error: "Failed to generate fix (500). Please try again."})
		assert.False(t, failed.Pending)
		assert.Equal(t, submitted.Messages, failed.Messages)
		assert.Equal(t, "Failed to generate fix (500). Please try again.", failed.Error)

		next := Reduce(failed, UserSubmitted{Content: "retry"})
		assert.Empty(t, next.Error)
		assert.Len(t, next.Messages, 2)
	})

	t.Run("reset", func(t *testing.T) {
		assert.Equal(t, Conversation{}, Reduce(submitted, Reset{}))
	})
}

func TestReduce_DoesNotAliasInput(t *testing.T) {
	base := Conversation{Messages: make([]Message, 1, 4)}
	base.Messages[0] = Message{Role: RoleUser, Content: "first"}
	base = Reduce(base, AssistantReplied{Content: "ignored"})

	a := Reduce(base, UserSubmitted{Content: "a"})
	b := Reduce(base, UserSubmitted{Content: "b"})

	assert.Equal(t, "a", a.Messages[1].Content)
	assert.Equal(t, "b", b.Messages[1].Content)
}

func TestNormalizeRole(t *testing.T) {
	assert.Equal(t, RoleSystem, NormalizeRole("system"))
	assert.Equal(t, RoleAssistant, NormalizeRole("assistant"))
	assert.Equal(t, RoleUser, NormalizeRole("user"))
	assert.Equal(t, RoleUser, NormalizeRole("function"))
	assert.Equal(t, RoleUser, NormalizeRole(""))
}
