package webhook

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/pkg/common"
	"github.com/talkincode/chatgate/pkg/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ContactUpdate is the normalized form of a contacts-update envelope.
type ContactUpdate struct {
	RemoteAddress string
	DisplayName   string
	AvatarURL     string
}

// Record is one normalized webhook item. Exactly one of Message or Contact
// is set; records keep the order their envelopes arrived in.
type Record struct {
	Message *domain.ChatMessage
	Contact *ContactUpdate
}

// Normalizer converts heterogeneous provider webhook payloads into canonical
// records. It is a pure transformation; persistence is the caller's job.
type Normalizer struct {
	now func() time.Time
}

func NewNormalizer() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize decodes a raw webhook body, which may be a single envelope or an
// array, and returns the recognized records in arrival order. A malformed or
// unrecognized envelope is dropped and logged; it never fails the batch.
// Only a body that is not JSON at all is an error.
func (n *Normalizer) Normalize(body []byte, session *domain.ChatSession) ([]Record, error) {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, errors.Wrap(err, "decode webhook body")
	}

	var items []interface{}
	switch v := root.(type) {
	case []interface{}:
		items = v
	default:
		items = []interface{}{root}
	}

	records := make([]Record, 0, len(items))
	for _, item := range items {
		env, ok := unwrap(item)
		if !ok {
			n.drop("not an object", "")
			continue
		}
		event := canonicalEvent(cast.ToString(env["event"]))
		switch event {
		case "messages.upsert", "message.upsert", "messages.set", "message.set":
			for _, msg := range n.extractMessages(env, session) {
				records = append(records, Record{Message: msg})
			}
		case "contacts.update", "contact.update":
			for _, cu := range n.extractContacts(env) {
				records = append(records, Record{Contact: cu})
			}
		default:
			n.drop("unrecognized event", event)
		}
	}
	return records, nil
}

func (n *Normalizer) drop(reason, event string) {
	metrics.IncrCounter(metrics.WebhookDropped, 1)
	zap.L().Warn("webhook: envelope dropped",
		zap.String("reason", reason),
		zap.String("event", event))
}

// unwrap returns the envelope object, descending one level into "body" when
// the provider wraps the real payload there.
func unwrap(item interface{}) (map[string]interface{}, bool) {
	m, ok := item.(map[string]interface{})
	if !ok {
		return nil, false
	}
	if inner, ok := m["body"].(map[string]interface{}); ok {
		return inner, true
	}
	return m, true
}

// canonicalEvent lowercases the discriminator and folds separator variants
// (MESSAGES_UPSERT, messages-upsert) onto the dotted form.
func canonicalEvent(ev string) string {
	ev = strings.ToLower(strings.TrimSpace(ev))
	ev = strings.ReplaceAll(ev, "_", ".")
	ev = strings.ReplaceAll(ev, "-", ".")
	return ev
}

type messageEnvelope struct {
	Key struct {
		RemoteJid string `mapstructure:"remoteJid"`
		FromMe    bool   `mapstructure:"fromMe"`
		ID        string `mapstructure:"id"`
	} `mapstructure:"key"`
	PushName         string                 `mapstructure:"pushName"`
	Message          map[string]interface{} `mapstructure:"message"`
	MessageTimestamp interface{}            `mapstructure:"messageTimestamp"`
	DateTime         string                 `mapstructure:"date_time"`
}

// extractMessages pulls the message list out of a messages.* envelope. The
// upsert shape carries one message in data; the set shape carries an array
// under data.messages.
func (n *Normalizer) extractMessages(env map[string]interface{}, session *domain.ChatSession) []*domain.ChatMessage {
	data, ok := env["data"].(map[string]interface{})
	if !ok {
		n.drop("missing data", cast.ToString(env["event"]))
		return nil
	}

	var rawMsgs []interface{}
	if list, ok := data["messages"].([]interface{}); ok {
		rawMsgs = list
	} else {
		rawMsgs = []interface{}{data}
	}

	out := make([]*domain.ChatMessage, 0, len(rawMsgs))
	for _, rm := range rawMsgs {
		obj, ok := rm.(map[string]interface{})
		if !ok {
			n.drop("message not an object", "")
			continue
		}
		var me messageEnvelope
		if err := mapstructure.Decode(obj, &me); err != nil {
			n.drop("undecodable message", "")
			continue
		}
		if me.Key.RemoteJid == "" {
			n.drop("missing routing address", "")
			continue
		}

		m := &domain.ChatMessage{
			ID:             common.UUIDint64(),
			ConversationID: me.Key.RemoteJid,
			Content:        firstContent(me.Message),
			Timestamp:      n.parseTimestamp(me),
			ProviderMsgID:  me.Key.ID,
			CreatedAt:      n.now(),
		}
		if raw, err := json.MarshalToString(obj); err == nil {
			m.Envelope = raw
		}
		if session != nil {
			m.SessionID = session.ID
		}
		if me.Key.FromMe {
			m.Role = domain.RoleOperator
			m.Status = domain.MessageSent
			m.Recipient = me.Key.RemoteJid
			if session != nil {
				m.Sender = session.OwnAddress
			}
		} else {
			m.Role = domain.RoleInbound
			m.Status = domain.MessageReceived
			m.Sender = me.Key.RemoteJid
			if session != nil {
				m.Recipient = session.OwnAddress
			}
		}
		out = append(out, m)
	}
	return out
}

// contentFields is the ordered set of places a text body may live in a
// provider message object.
var contentFields = [][2]string{
	{"conversation", ""},
	{"extendedTextMessage", "text"},
	{"imageMessage", "caption"},
	{"videoMessage", "caption"},
}

func firstContent(msg map[string]interface{}) string {
	if msg == nil {
		return ""
	}
	for _, f := range contentFields {
		if f[1] == "" {
			if s := cast.ToString(msg[f[0]]); s != "" {
				return s
			}
			continue
		}
		if nested, ok := msg[f[0]].(map[string]interface{}); ok {
			if s := cast.ToString(nested[f[1]]); s != "" {
				return s
			}
		}
	}
	return ""
}

// parseTimestamp accepts epoch seconds (number or numeric string) or an ISO
// datetime. Anything unparseable falls back to ingestion time.
func (n *Normalizer) parseTimestamp(me messageEnvelope) time.Time {
	if me.MessageTimestamp != nil {
		if sec := cast.ToInt64(me.MessageTimestamp); sec > 0 {
			return time.Unix(sec, 0)
		}
	}
	if me.DateTime != "" {
		if t, err := dateparse.ParseAny(me.DateTime); err == nil {
			return t
		}
	}
	return n.now()
}

type contactEnvelope struct {
	ID            string `mapstructure:"id"`
	RemoteJid     string `mapstructure:"remoteJid"`
	PushName      string `mapstructure:"pushName"`
	ProfilePicUrl string `mapstructure:"profilePicUrl"`
}

// extractContacts handles contacts.update envelopes, whose data is either a
// single contact object or an array of them.
func (n *Normalizer) extractContacts(env map[string]interface{}) []*ContactUpdate {
	var rawContacts []interface{}
	switch d := env["data"].(type) {
	case []interface{}:
		rawContacts = d
	case map[string]interface{}:
		rawContacts = []interface{}{d}
	default:
		n.drop("missing data", cast.ToString(env["event"]))
		return nil
	}

	out := make([]*ContactUpdate, 0, len(rawContacts))
	for _, rc := range rawContacts {
		obj, ok := rc.(map[string]interface{})
		if !ok {
			n.drop("contact not an object", "")
			continue
		}
		var ce contactEnvelope
		if err := mapstructure.Decode(obj, &ce); err != nil {
			n.drop("undecodable contact", "")
			continue
		}
		addr := ce.RemoteJid
		if addr == "" {
			addr = ce.ID
		}
		if addr == "" {
			n.drop("missing contact address", "")
			continue
		}
		out = append(out, &ContactUpdate{
			RemoteAddress: addr,
			DisplayName:   ce.PushName,
			AvatarURL:     ce.ProfilePicUrl,
		})
	}
	return out
}
