package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/pkg/common"
	"github.com/talkincode/chatgate/pkg/metrics"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this loses events rather than stalling the
// publisher.
const subscriberBuffer = 64

// Filter scopes a subscription to one conversation and, when SessionID is
// non-zero, to one session.
type Filter struct {
	ConversationID string
	SessionID      int64
}

func (f Filter) matches(m *domain.ChatMessage) bool {
	if m.ConversationID != f.ConversationID {
		return false
	}
	if f.SessionID != 0 && m.SessionID != f.SessionID {
		return false
	}
	return true
}

// Subscription is a live registration on the bus. Events arrive on Events()
// in publish order; the channel is closed on unsubscribe.
type Subscription struct {
	id     int64
	filter Filter
	ch     chan *domain.ChatMessage
}

func (s *Subscription) Events() <-chan *domain.ChatMessage { return s.ch }

// Bus fans persisted message events out to live subscribers. It holds no
// history; late joiners replay backlog through the pipeline's History before
// consuming the live channel.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[int64]*Subscription // conversationID -> subID -> sub
}

func New() *Bus {
	return &Bus{subs: make(map[string]map[int64]*Subscription)}
}

// Subscribe registers interest in messages matching the filter. The
// subscription is removed automatically when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, filter Filter) *Subscription {
	sub := &Subscription{
		id:     common.UUIDint64(),
		filter: filter,
		ch:     make(chan *domain.ChatMessage, subscriberBuffer),
	}

	b.mu.Lock()
	if _, ok := b.subs[filter.ConversationID]; !ok {
		b.subs[filter.ConversationID] = make(map[int64]*Subscription)
	}
	b.subs[filter.ConversationID][sub.id] = sub
	n := b.count()
	b.mu.Unlock()

	metrics.SetGauge(metrics.StreamSubscribers, n)
	zap.L().Debug("bus: subscriber added",
		zap.String("conversation_id", filter.ConversationID),
		zap.Int64("session_id", filter.SessionID),
		zap.Int64("sub_id", sub.id))

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sub)
	}()

	return sub
}

// Publish delivers the message to every matching subscriber. Delivery is
// non-blocking: a full subscriber channel drops this event for that
// subscriber only. Publish never returns an error to the caller.
//
// Sends happen under the read lock. Unsubscribe and Close close channels
// under the write lock, so a send can never hit a closed channel; the sends
// are non-blocking, so the lock is held only briefly.
func (b *Bus) Publish(m *domain.ChatMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	group, ok := b.subs[m.ConversationID]
	if !ok {
		return
	}
	for _, sub := range group {
		if !sub.filter.matches(m) {
			continue
		}
		select {
		case sub.ch <- m:
		default:
			zap.L().Warn("bus: dropped event for slow subscriber",
				zap.String("conversation_id", m.ConversationID),
				zap.Int64("sub_id", sub.id),
				zap.Int64("message_id", m.ID))
		}
	}
}

// Unsubscribe removes the registration and closes its channel. Safe to call
// more than once and after the bus dropped the subscriber.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.subs[sub.filter.ConversationID]
	if !ok {
		return
	}
	if _, exists := group[sub.id]; !exists {
		return
	}
	delete(group, sub.id)
	close(sub.ch)
	if len(group) == 0 {
		delete(b.subs, sub.filter.ConversationID)
	}
	metrics.SetGauge(metrics.StreamSubscribers, b.count())
	zap.L().Debug("bus: subscriber removed", zap.Int64("sub_id", sub.id))
}

// Close closes every subscription. Used at shutdown.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, group := range b.subs {
		for id, sub := range group {
			close(sub.ch)
			delete(group, id)
		}
		delete(b.subs, key)
	}
}

// count returns the total live subscriptions; callers hold b.mu.
func (b *Bus) count() int64 {
	var n int64
	for _, group := range b.subs {
		n += int64(len(group))
	}
	return n
}
