package voice

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is one entry in the conversation history.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage creates a message stamped with a fresh id.
func NewMessage(text string, isUser bool, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(text),
		IsUser:    isUser,
		CreatedAt: at,
	}
}

// Clock issues strictly increasing timestamps for message ordering.
// Two messages created within the same clock tick still sort apart.
// Not safe for concurrent use; the session owns one.
type Clock struct {
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock backed by now, or time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Next returns a timestamp later than every one returned before.
func (c *Clock) Next() time.Time {
	t := c.now()
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

// Observe advances the clock past t, used when history is restored.
func (c *Clock) Observe(t time.Time) {
	if t.After(c.last) {
		c.last = t
	}
}
