package adminapi

import (
	"github.com/talkincode/chatgate/internal/automation"
	"github.com/talkincode/chatgate/internal/bus"
	"github.com/talkincode/chatgate/internal/pipeline"
	"github.com/talkincode/chatgate/internal/session"
	"github.com/talkincode/chatgate/internal/webhook"
)

var (
	manager     *session.Manager
	pipe        *pipeline.Pipeline
	eventBus    *bus.Bus
	dispatcher  *automation.Dispatcher
	sessionRepo session.Repository
	contactRepo pipeline.ContactRepository
	messageRepo pipeline.MessageRepository
	normalizer  *webhook.Normalizer
)

// Init wires the handlers to their collaborators and registers every route.
// Must run after webserver.Init.
func Init(
	mgr *session.Manager,
	p *pipeline.Pipeline,
	b *bus.Bus,
	disp *automation.Dispatcher,
	sessions session.Repository,
	contacts pipeline.ContactRepository,
	messages pipeline.MessageRepository,
) {
	manager = mgr
	pipe = p
	eventBus = b
	dispatcher = disp
	sessionRepo = sessions
	contactRepo = contacts
	messageRepo = messages
	normalizer = webhook.NewNormalizer()

	registerTokenRoutes()
	registerSessionRoutes()
	registerMessageRoutes()
	registerContactRoutes()
	registerPartnersRoutes()
	registerWebhookRoutes()
	registerMetricsRoutes()
}
