package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenSingleUserTurn(t *testing.T) {
	prompt := Flatten([]Message{{Role: RoleUser, Content: "what is 2+2?"}}, DefaultFormat())
	assert.Equal(t, "[user] what is 2+2?", prompt)
}

func TestFlattenMultiTurn(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi, how can I help?"},
		{Role: RoleUser, Content: "what is 2+2?"},
	}
	prompt := Flatten(msgs, DefaultFormat())
	assert.Equal(t,
		"[user] hello\n\n[assistant] hi, how can I help?\n\n[user] what is 2+2?\n\nwhat is 2+2?",
		prompt)
}

func TestFlattenSystemTurnsFirst(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "question"},
		{Role: RoleSystem, Content: "be terse"},
	}
	f := DefaultFormat()
	f.RepeatFinalUser = false
	prompt := Flatten(msgs, f)
	assert.Equal(t, "[system] be terse\n\n[user] question", prompt)
}

func TestFlattenDeterministic(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "a"},
		{Role: RoleAssistant, Content: "b"},
		{Role: RoleUser, Content: "c"},
	}
	first := Flatten(msgs, DefaultFormat())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Flatten(msgs, DefaultFormat()))
	}
}

func TestFlattenDropsEmptyTurns(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "   "},
		{Role: RoleUser, Content: "real question"},
	}
	assert.Equal(t, "[user] real question", Flatten(msgs, DefaultFormat()))
}

func TestFlattenCustomFormat(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
	}
	f := Format{TurnTemplate: "%s: %s", Separator: "\n", RepeatFinalUser: false}
	assert.Equal(t, "user: a\nuser: b", Flatten(msgs, f))
}

func TestContentTextParts(t *testing.T) {
	content := []any{
		map[string]any{"type": "text", "text": "first part"},
		map[string]any{"type": "image_url", "image_url": "ignored"},
		map[string]any{"type": "text", "text": "second part"},
	}
	assert.Equal(t, "first part\n\nsecond part", ContentText(content))
	assert.Equal(t, "plain", ContentText("plain"))
	assert.Equal(t, "", ContentText(nil))
	assert.Equal(t, "", ContentText(42))
}

func TestUnseen(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}
	tail := Unseen(msgs, "a1")
	assert.Equal(t, []Message{{Role: RoleUser, Content: "q2"}}, tail)

	// Unknown answer means the full transcript goes out.
	assert.Equal(t, msgs, Unseen(msgs, "never said this"))
	assert.Equal(t, msgs, Unseen(msgs, ""))
}
