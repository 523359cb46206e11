package chat

import "slices"

// Memory is a bounded conversation log of (player, reply) exchanges.
// When it grows past its bound the oldest exchange is dropped.
type Memory struct {
	maxExchanges int
	messages     []ChatMessage
}

func NewMemory(maxExchanges int) *Memory {
	if maxExchanges < 1 {
		maxExchanges = 1
	}
	return &Memory{maxExchanges: maxExchanges}
}

// AddExchange records an utterance and its reply as one unit.
func (m *Memory) AddExchange(utterance, reply string) {
	m.messages = append(m.messages,
		ChatMessage{Role: ChatRoleUser, Content: utterance},
		ChatMessage{Role: ChatRoleAgent, Content: reply},
	)
	if over := len(m.messages) - 2*m.maxExchanges; over > 0 {
		m.messages = slices.Delete(m.messages, 0, over)
	}
}

// Messages returns a copy of the stored messages, oldest first.
func (m *Memory) Messages() []ChatMessage {
	return slices.Clone(m.messages)
}

// Len is the number of stored messages (twice the exchanges).
func (m *Memory) Len() int {
	return len(m.messages)
}

func (m *Memory) Limit() int {
	return m.maxExchanges
}

func (m *Memory) Clear() {
	m.messages = nil
}

// Restore replaces the contents, keeping only the newest exchanges that
// fit the bound. A trailing unpaired message is dropped.
func (m *Memory) Restore(messages []ChatMessage) {
	msgs := slices.Clone(messages)
	if len(msgs)%2 == 1 {
		msgs = msgs[:len(msgs)-1]
	}
	if over := len(msgs) - 2*m.maxExchanges; over > 0 {
		msgs = msgs[over:]
	}
	m.messages = msgs
}
