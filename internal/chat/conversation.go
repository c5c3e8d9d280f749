package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"github.com/suPer8Hu/bi-assistant/internal/ai"
	"gorm.io/datatypes"
)

const titleMaxRunes = 40

// Conversation is the message log of one session. Every Append persists the whole session.
type Conversation struct {
	store    Store
	id       string
	module   Module
	title    string
	messages []Message
	now      func() time.Time
}

// NewConversation starts an unsaved session; the first Append creates it.
func NewConversation(store Store, module Module) *Conversation {
	return &Conversation{
		store:  store,
		id:     uuid.NewString(),
		module: module,
		now:    time.Now,
	}
}

// NewConversationWithID is NewConversation for a client-supplied id.
func NewConversationWithID(store Store, id string, module Module) *Conversation {
	c := NewConversation(store, module)
	c.id = id
	return c
}

func ResumeConversation(ctx context.Context, store Store, sessionID string) (*Conversation, error) {
	view, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &Conversation{
		store:    store,
		id:       view.SessionID,
		module:   view.Module,
		title:    view.Title,
		messages: view.Messages,
		now:      time.Now,
	}, nil
}

// OpenConversation resumes sessionID, or starts it under module when it was never saved.
// An existing session of another module yields ErrModuleMismatch and a soft-deleted one
// ErrSessionDeleted.
func OpenConversation(ctx context.Context, store Store, sessionID string, module Module) (*Conversation, error) {
	conv, err := ResumeConversation(ctx, store, sessionID)
	if errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionDeleted) {
		return NewConversationWithID(store, sessionID, module), nil
	}
	if err != nil {
		return nil, err
	}
	if conv.module != module {
		return nil, fmt.Errorf("%w: session %s is %s", ErrModuleMismatch, sessionID, conv.module)
	}
	return conv, nil
}

func (c *Conversation) ID() string { return c.id }
func (c *Conversation) Module() Module { return c.module }
func (c *Conversation) Title() string { return c.title }
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// Append adds a message and saves the session. On a save error the message stays in
// memory and the error is returned.
func (c *Conversation) Append(ctx context.Context, role, content string, meta Metadata) (Message, error) {
	now := c.now()
	if n := len(c.messages); n > 0 && now.Before(c.messages[n-1].CreatedAt) {
		now = c.messages[n-1].CreatedAt
	}
	msg := Message{
		MessageID: ulid.Make().String(),
		SessionID: c.id,
		Seq:       len(c.messages),
		Role:      role,
		Content:   content,
		Metadata:  datatypes.NewJSONType(meta),
		CreatedAt: now,
	}
	c.messages = append(c.messages, msg)
	c.title = deriveTitle(c.messages, now)

	if err := c.store.Save(ctx, c.id, c.title, c.module, c.messages); err != nil {
		log.Errorf("chat: save failed session=%s module=%s messages=%d err=%v", c.id, c.module, len(c.messages), err)
		return msg, fmt.Errorf("save session %s: %w", c.id, err)
	}
	return msg, nil
}

// History returns the last n messages as model turns, oldest first.
func (c *Conversation) History(n int) []ai.Message { return c.HistoryAt(len(c.messages), n) }

// HistoryAt is History over the first end messages only.
func (c *Conversation) HistoryAt(end, n int) []ai.Message {
	msgs := c.window(end, n)
	out := make([]ai.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ai.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// PreviousSQL builds follow-up context from the last window messages: user turns verbatim
// and assistant turns that ran SQL as "Previous SQL: ...". At most keep turns are returned.
func (c *Conversation) PreviousSQL(window, keep int) []ai.Message {
	return c.PreviousSQLAt(len(c.messages), window, keep)
}

// PreviousSQLAt is PreviousSQL over the first end messages only.
func (c *Conversation) PreviousSQLAt(end, window, keep int) []ai.Message {
	var out []ai.Message
	for _, m := range c.window(end, window) {
		switch m.Role {
		case RoleUser:
			out = append(out, ai.Message{Role: ai.RoleUser, Content: m.Content})
		case RoleAssistant:
			if q := m.Meta().SQLQuery; q != "" {
				out = append(out, ai.Message{Role: ai.RoleAssistant, Content: "Previous SQL: " + q})
			}
		}
	}
	if keep > 0 && len(out) > keep {
		out = out[len(out)-keep:]
	}
	return out
}

func (c *Conversation) window(end, n int) []Message {
	end = max(0, min(end, len(c.messages)))
	msgs := c.messages[:end]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// JobTurn locates the messages written for jobID. reply is nil while the question is
// unanswered; ok is false when no message carries the job id.
func (c *Conversation) JobTurn(jobID string) (question Message, reply *Message, ok bool) {
	if jobID == "" {
		return Message{}, nil, false
	}
	for i, m := range c.messages {
		if m.Role != RoleUser || m.Meta().JobID != jobID {
			continue
		}
		if i+1 < len(c.messages) && c.messages[i+1].Role == RoleAssistant {
			r := c.messages[i+1]
			return m, &r, true
		}
		return m, nil, true
	}
	return Message{}, nil, false
}

// deriveTitle uses the first user message, cut to 40 runes, or "Chat HH:MM".
func deriveTitle(msgs []Message, now time.Time) string {
	for _, m := range msgs {
		if m.Role != RoleUser {
			continue
		}
		r := []rune(m.Content)
		if len(r) > titleMaxRunes {
			return string(r[:titleMaxRunes]) + "..."
		}
		return m.Content
	}
	return "Chat " + now.Format("15:04")
}
