package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insight/pkg/logging"
	"github.com/ekaya-inc/ekaya-insight/pkg/models"
	"github.com/ekaya-inc/ekaya-insight/pkg/services"
)

// maxAskBodyBytes bounds the JSON body of a question.
const maxAskBodyBytes = 64 << 10

// AskRequest is the body of POST /api/ask.
type AskRequest struct {
	Query                string                       `json:"query"`
	ClarificationContext *models.ClarificationContext `json:"clarification_context,omitempty"`
}

// AskHandler answers natural-language questions about the active dataset.
type AskHandler struct {
	answers services.AnswerService
	logger  *zap.Logger
}

// NewAskHandler creates a new AskHandler.
func NewAskHandler(answers services.AnswerService, logger *zap.Logger) *AskHandler {
	return &AskHandler{answers: answers, logger: logger}
}

// RegisterRoutes registers the ask handler's routes on the given mux.
func (h *AskHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ask", h.Ask)
}

// Ask handles POST /api/ask.
// Every pipeline outcome, including refusals and clarifications, is a 200
// with the answer in data; only infrastructure failures are 5xx.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes)).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Request body must be JSON with a query field"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	answer, err := h.answers.ResolveAndAnswer(r.Context(), req.Query, req.ClarificationContext)
	if err != nil {
		h.logger.Error("Failed to answer query",
			zap.String("query", logging.SanitizeQuery(req.Query)),
			zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusInternalServerError, "answer_failed", "The question could not be answered right now"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ApiResponse{Success: true, Data: answer}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
