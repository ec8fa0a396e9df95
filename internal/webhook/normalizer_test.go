package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkincode/chatgate/internal/domain"
)

var testSession = &domain.ChatSession{
	ID:         42,
	OwnAddress: "628999@s.whatsapp.net",
}

func TestNormalizeSingleUpsert(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "628111@s.whatsapp.net", "fromMe": false, "id": "3EB0A1"},
			"pushName": "Budi",
			"message": {"conversation": "halo"},
			"messageTimestamp": 1700000000
		}
	}`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	m := recs[0].Message
	require.NotNil(t, m)
	assert.Equal(t, "628111@s.whatsapp.net", m.ConversationID)
	assert.Equal(t, "628111@s.whatsapp.net", m.Sender)
	assert.Equal(t, "628999@s.whatsapp.net", m.Recipient)
	assert.Equal(t, "halo", m.Content)
	assert.Equal(t, domain.RoleInbound, m.Role)
	assert.Equal(t, domain.MessageReceived, m.Status)
	assert.Equal(t, int64(42), m.SessionID)
	assert.Equal(t, "3EB0A1", m.ProviderMsgID)
	assert.Equal(t, int64(1700000000), m.Timestamp.Unix())
	assert.NotEmpty(t, m.Envelope)
}

// A session whose own address was derived from its phone number at creation
// must stamp that address on every normalized message.
func TestNormalizeUsesPhoneDerivedOwnAddress(t *testing.T) {
	session := &domain.ChatSession{
		ID:         7,
		Phone:      "+62 812-3456-789",
		OwnAddress: domain.OwnAddressFromPhone("+62 812-3456-789"),
	}
	require.Equal(t, "628123456789@s.whatsapp.net", session.OwnAddress)

	body := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "628111@s.whatsapp.net", "fromMe": false, "id": "d1"},
			"message": {"conversation": "siang"}
		}
	}`)
	recs, err := NewNormalizer().Normalize(body, session)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	m := recs[0].Message
	assert.Equal(t, "628123456789@s.whatsapp.net", m.Recipient)
	assert.NotEmpty(t, m.Recipient)
}

func TestNormalizeFromMeOrientsOutgoing(t *testing.T) {
	body := []byte(`{
		"event": "messages.upsert",
		"data": {
			"key": {"remoteJid": "628111@s.whatsapp.net", "fromMe": true, "id": "x"},
			"message": {"conversation": "balasan"}
		}
	}`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	m := recs[0].Message
	assert.Equal(t, domain.RoleOperator, m.Role)
	assert.Equal(t, domain.MessageSent, m.Status)
	assert.Equal(t, "628999@s.whatsapp.net", m.Sender)
	assert.Equal(t, "628111@s.whatsapp.net", m.Recipient)
}

func TestNormalizeMessagesSetArray(t *testing.T) {
	body := []byte(`{
		"event": "MESSAGES_SET",
		"data": {
			"messages": [
				{"key": {"remoteJid": "a@s.whatsapp.net"}, "message": {"conversation": "one"}},
				{"key": {"remoteJid": "a@s.whatsapp.net"}, "message": {"conversation": "two"}}
			]
		}
	}`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "one", recs[0].Message.Content)
	assert.Equal(t, "two", recs[1].Message.Content)
}

func TestNormalizeBatchKeepsOrderAndMixedKinds(t *testing.T) {
	body := []byte(`[
		{"event": "contacts.update", "data": {"id": "628111@s.whatsapp.net", "pushName": "Budi", "profilePicUrl": "http://x/p.jpg"}},
		{"event": "MESSAGES_UPSERT", "data": {"key": {"remoteJid": "628111@s.whatsapp.net"}, "message": {"conversation": "hi"}}}
	]`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.NotNil(t, recs[0].Contact)
	assert.Equal(t, "628111@s.whatsapp.net", recs[0].Contact.RemoteAddress)
	assert.Equal(t, "Budi", recs[0].Contact.DisplayName)
	assert.Equal(t, "http://x/p.jpg", recs[0].Contact.AvatarURL)
	require.NotNil(t, recs[1].Message)
	assert.Equal(t, "hi", recs[1].Message.Content)
}

func TestNormalizeUnknownEventDroppedNotFatal(t *testing.T) {
	body := []byte(`[
		{"event": "presence.update", "data": {}},
		{"event": "messages.upsert", "data": {"key": {"remoteJid": "b@s.whatsapp.net"}, "message": {"conversation": "kept"}}}
	]`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0].Message.Content)
}

func TestNormalizeBodyWrappedEnvelope(t *testing.T) {
	body := []byte(`{
		"body": {
			"event": "messages-upsert",
			"data": {"key": {"remoteJid": "c@s.whatsapp.net"}, "message": {"conversation": "wrapped"}}
		}
	}`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "wrapped", recs[0].Message.Content)
}

func TestNormalizeContentFieldOrder(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want string
	}{
		{"conversation wins", `{"conversation": "plain", "imageMessage": {"caption": "img"}}`, "plain"},
		{"extended text", `{"extendedTextMessage": {"text": "quoted"}}`, "quoted"},
		{"image caption", `{"imageMessage": {"caption": "img"}}`, "img"},
		{"video caption", `{"videoMessage": {"caption": "vid"}}`, "vid"},
		{"nothing", `{"stickerMessage": {}}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := []byte(`{"event": "messages.upsert", "data": {"key": {"remoteJid": "d@s.whatsapp.net"}, "message": ` + tc.msg + `}}`)
			recs, err := NewNormalizer().Normalize(body, testSession)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tc.want, recs[0].Message.Content)
		})
	}
}

func TestNormalizeTimestampVariants(t *testing.T) {
	n := NewNormalizer()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n.now = func() time.Time { return fixed }

	// epoch as string
	recs, err := n.Normalize([]byte(`{"event": "messages.upsert", "data": {"key": {"remoteJid": "e@s.whatsapp.net"}, "messageTimestamp": "1700000001", "message": {"conversation": "x"}}}`), testSession)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000001), recs[0].Message.Timestamp.Unix())

	// ISO millis
	recs, err = n.Normalize([]byte(`{"event": "messages.upsert", "data": {"key": {"remoteJid": "e@s.whatsapp.net"}, "date_time": "2023-11-14T22:13:20.500Z", "message": {"conversation": "x"}}}`), testSession)
	require.NoError(t, err)
	assert.Equal(t, 2023, recs[0].Message.Timestamp.Year())

	// neither present defaults to ingestion time
	recs, err = n.Normalize([]byte(`{"event": "messages.upsert", "data": {"key": {"remoteJid": "e@s.whatsapp.net"}, "message": {"conversation": "x"}}}`), testSession)
	require.NoError(t, err)
	assert.Equal(t, fixed, recs[0].Message.Timestamp)
}

func TestNormalizeMissingRoutingAddressDropped(t *testing.T) {
	body := []byte(`{"event": "messages.upsert", "data": {"message": {"conversation": "orphan"}}}`)
	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestNormalizeContactsArray(t *testing.T) {
	body := []byte(`{"event": "contacts.update", "data": [
		{"remoteJid": "p@s.whatsapp.net", "pushName": "P"},
		{"id": "q@s.whatsapp.net"}
	]}`)

	recs, err := NewNormalizer().Normalize(body, testSession)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "p@s.whatsapp.net", recs[0].Contact.RemoteAddress)
	assert.Equal(t, "q@s.whatsapp.net", recs[1].Contact.RemoteAddress)
}

func TestNormalizeGarbageBodyFails(t *testing.T) {
	_, err := NewNormalizer().Normalize([]byte(`not json`), testSession)
	assert.Error(t, err)
}
