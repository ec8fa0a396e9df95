package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/bus"
	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/webhook"
	"github.com/talkincode/chatgate/pkg/common"
	"github.com/talkincode/chatgate/pkg/metrics"
)

var (
	// ErrInvalidSessionBinding means the send request names a session that
	// does not exist or whose display name is a bare placeholder.
	ErrInvalidSessionBinding = errors.New("invalid session binding")

	// ErrEmptyMessage means the send request carries no content.
	ErrEmptyMessage = errors.New("empty message content")
)

// Deduper suppresses repeated webhook deliveries. CheckAndMark reports true
// when the key was already seen.
type Deduper interface {
	CheckAndMark(key string) bool
}

// SendRequest is an outgoing-message request from an operator or bot. The
// wire shape is {to, message, session_id, conversation_id?, role?}; content
// is accepted as an alias for message, and the conversation defaults to the
// recipient address.
type SendRequest struct {
	SessionID      int64  `json:"session_id,string"`
	To             string `json:"to"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Content        string `json:"content"`
	Role           string `json:"role"`
}

func (r *SendRequest) text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Content
}

func (r *SendRequest) conversation() string {
	if r.ConversationID != "" {
		return r.ConversationID
	}
	return r.To
}

// Pipeline persists canonical messages and fans them out on the bus. It
// guarantees local durability and delivery to live subscribers; provider-side
// delivery belongs to the automation endpoint.
type Pipeline struct {
	messages MessageRepository
	contacts ContactRepository
	sessions SessionFinder
	bus      *bus.Bus
	dedupe   Deduper // nil disables duplicate suppression
}

func New(messages MessageRepository, contacts ContactRepository, sessions SessionFinder, b *bus.Bus, dedupe Deduper) *Pipeline {
	return &Pipeline{
		messages: messages,
		contacts: contacts,
		sessions: sessions,
		bus:      b,
		dedupe:   dedupe,
	}
}

// Ingest persists an inbound canonical message and publishes it. A storage
// failure is returned to the caller; publish happens only after a successful
// write. Messages without content are dropped.
func (p *Pipeline) Ingest(ctx context.Context, m *domain.ChatMessage) error {
	if m.Content == "" {
		zap.L().Debug("pipeline: skipping contentless message",
			zap.String("conversation_id", m.ConversationID))
		return nil
	}
	if p.dedupe != nil && m.ProviderMsgID != "" && p.dedupe.CheckAndMark(m.ProviderMsgID) {
		zap.L().Debug("pipeline: duplicate delivery suppressed",
			zap.String("provider_msg_id", m.ProviderMsgID))
		return nil
	}
	if m.ID == 0 {
		m.ID = common.UUIDint64()
	}
	if err := p.messages.Create(ctx, m); err != nil {
		return errors.Wrap(err, "persist inbound message")
	}
	metrics.IncrCounter(metrics.MessageInbound, 1)
	p.bus.Publish(m)
	return nil
}

// SendOutgoing validates, persists and publishes an operator or bot message.
func (p *Pipeline) SendOutgoing(ctx context.Context, req *SendRequest) (*domain.ChatMessage, error) {
	session, err := p.sessions.GetByID(ctx, req.SessionID)
	if err != nil || session == nil || common.IsEmptyOrNA(session.Name) {
		return nil, ErrInvalidSessionBinding
	}
	content := req.text()
	if content == "" {
		return nil, ErrEmptyMessage
	}
	role := req.Role
	if role == "" {
		role = domain.RoleOperator
	}

	now := time.Now()
	m := &domain.ChatMessage{
		ID:             common.UUIDint64(),
		ConversationID: req.conversation(),
		SessionID:      session.ID,
		Sender:         session.OwnAddress,
		Recipient:      req.To,
		Content:        content,
		Role:           role,
		Status:         domain.MessageSent,
		Timestamp:      now,
		CreatedAt:      now,
	}
	if err := p.messages.Create(ctx, m); err != nil {
		return nil, errors.Wrap(err, "persist outgoing message")
	}
	metrics.IncrCounter(metrics.MessageOutbound, 1)
	p.bus.Publish(m)
	return m, nil
}

// History returns a conversation's messages oldest-first, for replay before
// consuming a live subscription.
func (p *Pipeline) History(ctx context.Context, conversationID string, sessionID int64) ([]*domain.ChatMessage, error) {
	return p.messages.History(ctx, conversationID, sessionID)
}

// UpsertContact applies one contact-update record. Placeholder display names
// are not written over an existing name.
func (p *Pipeline) UpsertContact(ctx context.Context, cu *webhook.ContactUpdate) error {
	c := &domain.ChatContact{
		ID:            common.UUIDint64(),
		RemoteAddress: cu.RemoteAddress,
		AvatarURL:     cu.AvatarURL,
		AgentState:    domain.AgentStateAI,
		AgentStatus:   domain.AgentStatusFull,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if !common.IsEmptyOrNA(cu.DisplayName) {
		c.DisplayName = cu.DisplayName
	}
	return p.contacts.Upsert(ctx, c)
}

// ProcessRecords applies normalized webhook records in order. A failing
// record is logged and skipped so the rest of the batch still lands; the
// first failure is returned for the caller's accounting.
func (p *Pipeline) ProcessRecords(ctx context.Context, records []webhook.Record) error {
	var firstErr error
	for _, rec := range records {
		var err error
		switch {
		case rec.Contact != nil:
			err = p.UpsertContact(ctx, rec.Contact)
		case rec.Message != nil:
			err = p.Ingest(ctx, rec.Message)
		}
		if err != nil {
			zap.L().Error("pipeline: record failed", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
