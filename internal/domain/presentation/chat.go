package presentation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultChatUser = "You"
	maxChatMessages = 500
)

// Message is a chat line.
type Message struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is an in-memory, ordered chat log.
type Chat struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

// NewChat returns a log seeded with the two demo messages.
func NewChat(now func() time.Time) *Chat {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Chat{
		now: now,
		messages: []Message{
			{ID: "1", Username: "Player1", Message: "Good game everyone!", Timestamp: t.Add(-2 * time.Minute)},
			{ID: "2", Username: "CoachMike", Message: "Let's focus on defense", Timestamp: t.Add(-time.Minute)},
		},
	}
}

// Post appends a message. Blank text is rejected; a blank user posts as "You".
func (c *Chat) Post(username, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = defaultChatUser
	}
	m := Message{ID: uuid.NewString(), Username: username, Message: text, Timestamp: c.now()}

	c.mu.Lock()
	c.messages = append(c.messages, m)
	if over := len(c.messages) - maxChatMessages; over > 0 {
		c.messages = append(c.messages[:0:0], c.messages[over:]...)
	}
	c.mu.Unlock()
	return m, nil
}

// Messages returns a copy in posting order.
func (c *Chat) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
