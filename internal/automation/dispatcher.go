package automation

import (
	"context"
	"time"

	"github.com/guonaihong/gout"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/pkg/metrics"
)

// Dispatch is the payload forwarded to the automation endpoint, which owns
// the actual provider-side delivery.
type Dispatch struct {
	To          string `json:"to"`
	Message     string `json:"message"`
	SessionID   int64  `json:"sessionId,string"`
	SessionName string `json:"sessionName"`
	Role        string `json:"role"`
	UserID      string `json:"userId"`
}

// Dispatcher forwards outgoing messages to the external automation endpoint.
// Delivery is fire-and-forget on a bounded worker pool; a failed dispatch is
// logged, never raised to the sender.
type Dispatcher struct {
	endpoint string
	timeout  time.Duration
	pool     *ants.Pool
}

func NewDispatcher(endpoint string, timeout time.Duration, workers int) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if workers <= 0 {
		workers = 8
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, errors.Wrap(err, "automation worker pool")
	}
	return &Dispatcher{endpoint: endpoint, timeout: timeout, pool: pool}, nil
}

// Enabled reports whether an endpoint is configured.
func (d *Dispatcher) Enabled() bool {
	return d.endpoint != ""
}

// Submit queues one dispatch. Returns an error only when the pool refuses
// the task; the HTTP outcome itself is logged, not returned.
func (d *Dispatcher) Submit(m *domain.ChatMessage, sessionName string) error {
	if !d.Enabled() {
		return nil
	}
	payload := &Dispatch{
		To:          m.Recipient,
		Message:     m.Content,
		SessionID:   m.SessionID,
		SessionName: sessionName,
		Role:        m.Role,
		UserID:      m.ConversationID,
	}
	return d.pool.Submit(func() {
		d.deliver(payload)
	})
}

func (d *Dispatcher) deliver(payload *Dispatch) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var (
		code int
		body string
	)
	err := gout.New().POST(d.endpoint).
		WithContext(ctx).
		SetTimeout(d.timeout).
		SetJSON(payload).
		Code(&code).
		BindBody(&body).
		Do()
	if err != nil {
		zap.L().Warn("automation: dispatch failed",
			zap.String("to", payload.To),
			zap.Int64("session_id", payload.SessionID),
			zap.Error(err))
		return
	}
	metrics.IncrCounter(metrics.AutomationDispatches, 1)
	if code < 200 || code > 299 {
		zap.L().Warn("automation: endpoint rejected dispatch",
			zap.Int("status", code),
			zap.String("body", body))
		return
	}
	zap.L().Debug("automation: dispatched",
		zap.String("to", payload.To),
		zap.Int("status", code))
}

// Release shuts the worker pool down.
func (d *Dispatcher) Release() {
	if d.pool != nil {
		d.pool.Release()
	}
}
