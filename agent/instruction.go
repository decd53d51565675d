package agent

import "github.com/hupe1980/taskloop/core"

// Instructions represents the agent's system prompt in one of three caller
// shapes: a plain string, a single message or an ordered message sequence.
// All shapes are normalized once at construction into zero-or-more
// system-role messages; the loop never re-derives them.
type Instructions struct {
	messages []core.Content
}

// InstructionsFromText creates Instructions from a static string. An empty
// string yields zero system messages.
func InstructionsFromText(text string) Instructions {
	if text == "" {
		return Instructions{}
	}
	return Instructions{messages: []core.Content{core.NewTextContent("system", text)}}
}

// InstructionsFromMessage creates Instructions from a single message. The
// message's role is re-tagged to "system".
func InstructionsFromMessage(msg core.Content) Instructions {
	return InstructionsFromMessages([]core.Content{msg})
}

// InstructionsFromMessages creates Instructions from an ordered message
// sequence. Each message's role is re-tagged to "system"; order is preserved.
func InstructionsFromMessages(msgs []core.Content) Instructions {
	normalized := make([]core.Content, 0, len(msgs))
	for _, m := range msgs {
		normalized = append(normalized, core.Content{Role: "system", Parts: m.Parts})
	}
	return Instructions{messages: normalized}
}

// IsZero reports whether no system messages were configured.
func (i Instructions) IsZero() bool { return len(i.messages) == 0 }

// SystemMessages returns a copy of the normalized system messages.
func (i Instructions) SystemMessages() []core.Content {
	out := make([]core.Content, len(i.messages))
	copy(out, i.messages)
	return out
}
