package tutor

import (
	"context"
	"sync"
	"time"

	"github.com/hypatia-tutor/hypatia/pkg/choreo"
)

// GenericFailure is shown to the student when no reply could be obtained.
const GenericFailure = "Sorry, I couldn't get a response. Please try again."

// DefaultMaxHistory is the maximum number of messages kept per conversation.
const DefaultMaxHistory = 200

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation history.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Reply is the outcome of one exchange.
type Reply struct {
	// Text is the display text of the reply, or GenericFailure.
	Text   string
	Raw    string
	Script choreo.Script
	Failed bool
}

// Conversation holds the message history of one session. All access is
// thread-safe and exchanges are serialized.
type Conversation struct {
	turn sync.Mutex

	mu         sync.RWMutex
	maxHistory int
	history    []Message
}

// NewConversation creates an empty conversation. A non-positive maxHistory
// uses DefaultMaxHistory.
func NewConversation(maxHistory int) *Conversation {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Conversation{maxHistory: maxHistory}
}

// Exchange sends text as the next user message and compiles the reply.
// On failure the user message is withdrawn from the history, the reply
// carries GenericFailure and the error is returned for logging.
func (c *Conversation) Exchange(ctx context.Context, model Completer, system, text string, mode choreo.Mode, t choreo.Timing) (Reply, error) {
	c.turn.Lock()
	defer c.turn.Unlock()

	c.append(Message{Role: RoleUser, Content: text, Timestamp: time.Now()})

	raw, err := model.Complete(ctx, system, c.Messages())
	if err != nil {
		c.dropLast(RoleUser)
		return Reply{Text: GenericFailure, Failed: true}, err
	}

	c.append(Message{Role: RoleAssistant, Content: raw, Timestamp: time.Now()})

	script := choreo.Compile(raw, mode, t)
	return Reply{Text: script.DisplayText, Raw: raw, Script: script}, nil
}

// Messages returns a snapshot of the history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]Message, len(c.history))
	copy(cp, c.history)
	return cp
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// append adds a message. An assistant message that takes the history past
// the cap evicts the oldest 10% of messages, rounded up to whole
// user/assistant pairs so the history still opens with a user message.
// A pending user message never evicts, so withdrawing it restores the
// history as it was.
func (c *Conversation) append(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, m)
	if m.Role != RoleAssistant || len(c.history) <= c.maxHistory {
		return
	}
	evict := max(c.maxHistory/10, 2)
	if evict%2 != 0 {
		evict++
	}
	c.history = c.history[min(evict, len(c.history)):]
}

func (c *Conversation) dropLast(role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.history); n > 0 && c.history[n-1].Role == role {
		c.history = c.history[:n-1]
	}
}
