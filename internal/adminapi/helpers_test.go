package adminapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkincode/chatgate/internal/pipeline"
	"github.com/talkincode/chatgate/internal/provider"
	"github.com/talkincode/chatgate/internal/session"
)

func newTestContext(t *testing.T, target string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestParsePaginationDefaults(t *testing.T) {
	c, _ := newTestContext(t, "/api/messages")
	page, pageSize := parsePagination(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)
}

func TestParsePaginationBounds(t *testing.T) {
	c, _ := newTestContext(t, "/api/messages?page=3&page_size=50")
	page, pageSize := parsePagination(c)
	assert.Equal(t, 3, page)
	assert.Equal(t, 50, pageSize)

	c, _ = newTestContext(t, "/api/messages?page=-1&page_size=9999")
	page, pageSize = parsePagination(c)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, pageSize)
}

func TestParseIDParam(t *testing.T) {
	c, _ := newTestContext(t, "/api/sessions/42")
	c.SetParamNames("id")
	c.SetParamValues("42")
	id, err := parseIDParam(c, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	c.SetParamValues("banana")
	_, err = parseIDParam(c, "id")
	assert.Error(t, err)
}

func TestFailFromErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid phone", provider.ErrInvalidPhone, http.StatusBadRequest},
		{"manual setup", session.ErrManualSetup, http.StatusConflict},
		{"pairing unavailable", session.ErrPairingUnavailable, http.StatusServiceUnavailable},
		{"invalid binding", pipeline.ErrInvalidSessionBinding, http.StatusBadRequest},
		{"empty message", pipeline.ErrEmptyMessage, http.StatusBadRequest},
		{"unreachable", &provider.UnreachableError{Op: "create"}, http.StatusBadGateway},
		{"rejected", &provider.RejectedError{Op: "create", Status: 403}, http.StatusBadGateway},
		{"not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"wrapped unreachable", errors.Wrap(&provider.UnreachableError{Op: "state"}, "poll"), http.StatusBadGateway},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newTestContext(t, "/api/sessions")
			require.NoError(t, failFromError(c, tc.err))
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
