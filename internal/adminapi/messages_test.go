package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/talkincode/chatgate/internal/bus"
	"github.com/talkincode/chatgate/internal/domain"
	"github.com/talkincode/chatgate/internal/pipeline"
	"github.com/talkincode/chatgate/internal/session"
)

// wires the send handler to a real pipeline over a throwaway database and
// restores the package collaborators afterwards.
func newSendFixture(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ChatSession{}, &domain.ChatMessage{}, &domain.ChatContact{}))

	repo := session.NewGormRepository(db)
	require.NoError(t, repo.Create(context.Background(), &domain.ChatSession{
		ID:         7,
		Name:       "support-line",
		Phone:      "628999",
		OwnAddress: "628999@s.whatsapp.net",
		Status:     domain.SessionConnected,
	}))

	b := bus.New()
	t.Cleanup(b.Close)

	oldPipe, oldRepo, oldBus, oldDisp := pipe, sessionRepo, eventBus, dispatcher
	pipe = pipeline.New(pipeline.NewGormMessageRepository(db), pipeline.NewGormContactRepository(db), repo, b, nil)
	sessionRepo = repo
	eventBus = b
	dispatcher = nil
	t.Cleanup(func() {
		pipe, sessionRepo, eventBus, dispatcher = oldPipe, oldRepo, oldBus, oldDisp
	})
	return db
}

func postJSON(t *testing.T, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestPostMessageSendWireShape(t *testing.T) {
	db := newSendFixture(t)

	c, rec := postJSON(t, "/api/messages/send",
		`{"to": "628111@s.whatsapp.net", "message": "pagi", "session_id": "7"}`)
	require.NoError(t, postMessageSend(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stored domain.ChatMessage
	require.NoError(t, db.Where("conversation_id = ?", "628111@s.whatsapp.net").First(&stored).Error)
	assert.Equal(t, "pagi", stored.Content)
	assert.Equal(t, "628999@s.whatsapp.net", stored.Sender)
}

func TestPostMessageSendConversationOverride(t *testing.T) {
	db := newSendFixture(t)

	c, rec := postJSON(t, "/api/messages/send",
		`{"to": "628111@s.whatsapp.net", "message": "halo grup", "session_id": "7", "conversation_id": "grp-1@g.us"}`)
	require.NoError(t, postMessageSend(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stored domain.ChatMessage
	require.NoError(t, db.Where("conversation_id = ?", "grp-1@g.us").First(&stored).Error)
	assert.Equal(t, "628111@s.whatsapp.net", stored.Recipient)
}

func TestPostMessageSendEmptyMessageRejected(t *testing.T) {
	newSendFixture(t)

	c, rec := postJSON(t, "/api/messages/send",
		`{"to": "628111@s.whatsapp.net", "session_id": "7"}`)
	require.NoError(t, postMessageSend(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "EMPTY_MESSAGE")
}
