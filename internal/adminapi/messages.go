package adminapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/talkincode/chatgate/internal/bus"
	"github.com/talkincode/chatgate/internal/pipeline"
	"github.com/talkincode/chatgate/internal/webserver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func registerMessageRoutes() {
	webserver.ApiPOST("/messages/send", postMessageSend)
	webserver.ApiGET("/messages", listMessages)
	webserver.ApiGET("/messages/history", getMessageHistory)
	webserver.ApiGET("/messages/stream", streamMessages)
	webserver.ApiGET("/messages/export", exportMessages)
}

// postMessageSend validates and persists an outgoing message, fans it out to
// live subscribers, then hands provider delivery to the automation endpoint.
func postMessageSend(c echo.Context) error {
	var req pipeline.SendRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse send request", nil)
	}

	m, err := pipe.SendOutgoing(c.Request().Context(), &req)
	if err != nil {
		return failFromError(c, err)
	}

	if dispatcher != nil && dispatcher.Enabled() {
		s, serr := sessionRepo.GetByID(c.Request().Context(), m.SessionID)
		sessionName := ""
		if serr == nil {
			sessionName = s.Name
		}
		if derr := dispatcher.Submit(m, sessionName); derr != nil {
			zap.L().Warn("adminapi: automation submit refused", zap.Error(derr))
		}
	}
	return ok(c, m)
}

func listMessages(c echo.Context) error {
	page, pageSize := parsePagination(c)

	filter := map[string]interface{}{}
	if conv := c.QueryParam("conversation_id"); conv != "" {
		filter["conversation_id"] = conv
	}
	if sid := cast.ToInt64(c.QueryParam("session_id")); sid != 0 {
		filter["session_id"] = sid
	}
	if role := c.QueryParam("role"); role != "" {
		filter["role"] = role
	}

	msgs, total, err := messageRepo.List(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return failFromError(c, err)
	}
	return paged(c, msgs, total, page, pageSize)
}

// getMessageHistory replays a conversation oldest-first, the same order a
// stream consumer should apply before switching to live events.
func getMessageHistory(c echo.Context) error {
	conv := c.QueryParam("conversation_id")
	if conv == "" {
		return fail(c, http.StatusBadRequest, "MISSING_CONVERSATION", "conversation_id is required", nil)
	}
	sid := cast.ToInt64(c.QueryParam("session_id"))

	msgs, err := pipe.History(c.Request().Context(), conv, sid)
	if err != nil {
		return failFromError(c, err)
	}
	return ok(c, msgs)
}

// streamMessages serves a conversation over SSE: backlog first, then live
// events until the client disconnects.
func streamMessages(c echo.Context) error {
	conv := c.QueryParam("conversation_id")
	if conv == "" {
		return fail(c, http.StatusBadRequest, "MISSING_CONVERSATION", "conversation_id is required", nil)
	}
	sid := cast.ToInt64(c.QueryParam("session_id"))

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()

	// subscribe before replay so no event falls between backlog and live
	sub := eventBus.Subscribe(ctx, bus.Filter{ConversationID: conv, SessionID: sid})
	defer eventBus.Unsubscribe(sub)

	backlog, err := pipe.History(ctx, conv, sid)
	if err != nil {
		zap.L().Warn("adminapi: stream backlog failed", zap.Error(err))
		return nil
	}
	seen := make(map[int64]struct{}, len(backlog))
	for _, m := range backlog {
		seen[m.ID] = struct{}{}
		if err := writeEvent(c, m); err != nil {
			return nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, open := <-sub.Events():
			if !open {
				return nil
			}
			if _, dup := seen[m.ID]; dup {
				continue
			}
			if err := writeEvent(c, m); err != nil {
				return nil
			}
		}
	}
}

func writeEvent(c echo.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}

var exportHeader = []string{"ID", "Conversation", "Session", "Sender", "Recipient", "Role", "Status", "Content", "Timestamp"}

// exportMessages writes a conversation's history as an xlsx workbook.
func exportMessages(c echo.Context) error {
	conv := c.QueryParam("conversation_id")
	if conv == "" {
		return fail(c, http.StatusBadRequest, "MISSING_CONVERSATION", "conversation_id is required", nil)
	}
	sid := cast.ToInt64(c.QueryParam("session_id"))

	msgs, err := pipe.History(c.Request().Context(), conv, sid)
	if err != nil {
		return failFromError(c, err)
	}

	xlsx := excelize.NewFile()
	const sheet = "Sheet1"
	for i, h := range exportHeader {
		xlsx.SetCellValue(sheet, fmt.Sprintf("%s1", excelize.ToAlphaString(i)), h)
	}
	for row, m := range msgs {
		values := []interface{}{
			m.ID, m.ConversationID, m.SessionID, m.Sender, m.Recipient,
			m.Role, m.Status, m.Content, m.Timestamp.Format(time.RFC3339),
		}
		for col, v := range values {
			xlsx.SetCellValue(sheet, fmt.Sprintf("%s%d", excelize.ToAlphaString(col), row+2), v)
		}
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="messages.xlsx"`)
	resp.WriteHeader(http.StatusOK)
	return xlsx.Write(resp)
}
