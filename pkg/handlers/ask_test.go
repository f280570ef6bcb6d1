package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/models"
)

func serveAsk(h *AskHandler, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body)))
	return rec
}

func TestAskHandler_ReturnsAnswer(t *testing.T) {
	stub := &stubAnswerService{answer: &models.Answer{
		Outcome: models.OutcomeAnswered,
		Message: "Total GST amount: 540.00 (from 2 rows).",
	}}
	rec := serveAsk(NewAskHandler(stub, zap.NewNop()),
		`{"query":"GST on 12 Jan","clarification_context":{"original_query":"GST on 12 Jan","confirmed":true}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GST on 12 Jan", stub.query)
	require.NotNil(t, stub.clarification)
	assert.True(t, stub.clarification.Confirmed)

	var resp struct {
		Success bool          `json:"success"`
		Data    models.Answer `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, models.OutcomeAnswered, resp.Data.Outcome)
	assert.Equal(t, "Total GST amount: 540.00 (from 2 rows).", resp.Data.Message)
}

func TestAskHandler_RefusalsAreStillOK(t *testing.T) {
	stub := &stubAnswerService{answer: &models.Answer{Outcome: models.OutcomeBlocked, Message: "I can't help with that."}}
	rec := serveAsk(NewAskHandler(stub, zap.NewNop()), `{"query":"how to evade tax"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, stub.clarification)
}

func TestAskHandler_InvalidBody(t *testing.T) {
	stub := &stubAnswerService{}
	rec := serveAsk(NewAskHandler(stub, zap.NewNop()), `{"query":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, stub.query, "service is not called")
}

func TestAskHandler_ServiceFailure(t *testing.T) {
	stub := &stubAnswerService{err: errors.New("dial tcp: password=hunter2 refused")}
	rec := serveAsk(NewAskHandler(stub, zap.NewNop()), `{"query":"gst for January 2025"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "answer_failed", body["error"])
	assert.NotContains(t, body["message"], "hunter2")
}

func TestAskHandler_WrongMethod(t *testing.T) {
	mux := http.NewServeMux()
	NewAskHandler(&stubAnswerService{}, zap.NewNop()).RegisterRoutes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ask", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
