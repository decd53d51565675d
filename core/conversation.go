package core

// Conversation accumulates the ordered message history for a single loop
// invocation. It is append-only: messages from iteration i always precede
// messages from iteration i+1, and appended messages are never mutated.
//
// A Conversation is exclusively owned by one invocation and is not safe for
// concurrent use; the iteration controller is the only writer, so no locking
// is required.
type Conversation struct {
	messages []Content
}

// NewConversation creates an empty conversation for a fresh invocation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds messages to the end of the conversation preserving order.
func (c *Conversation) Append(messages ...Content) {
	c.messages = append(c.messages, messages...)
}

// Messages returns a shallow copy of the accumulated messages for safe
// iteration and outbound request construction.
func (c *Conversation) Messages() []Content {
	out := make([]Content, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of accumulated messages.
func (c *Conversation) Len() int { return len(c.messages) }
