package chat

import "github.com/fabfab/estate-agent/llm"

// DefaultHistoryCapacity bounds the turns replayed to the model.
const DefaultHistoryCapacity = 10

// History is a fixed-capacity ring of conversation messages. Adding past
// capacity evicts the oldest message. The zero value is not usable.
type History struct {
	buf   []llm.Message
	start int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{buf: make([]llm.Message, capacity)}
}

func (h *History) Add(messages ...llm.Message) {
	for _, msg := range messages {
		idx := (h.start + h.size) % len(h.buf)
		h.buf[idx] = msg
		if h.size < len(h.buf) {
			h.size++
		} else {
			h.start = (h.start + 1) % len(h.buf)
		}
	}
}

// Messages returns the retained messages, oldest first.
func (h *History) Messages() []llm.Message {
	out := make([]llm.Message, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.start+i)%len(h.buf)])
	}
	return out
}

func (h *History) Len() int { return h.size }

func (h *History) Reset() {
	for i := range h.buf {
		h.buf[i] = llm.Message{}
	}
	h.start, h.size = 0, 0
}
