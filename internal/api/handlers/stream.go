package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/krstream/internal/api/errors"
	"github.com/bigkaa/krstream/internal/service"
)

// StreamHandler — обработчик отдачи медиафайлов.
type StreamHandler struct {
	svc *service.StreamService
}

// NewStreamHandler создаёт обработчик отдачи.
func NewStreamHandler(svc *service.StreamService) *StreamHandler {
	return &StreamHandler{svc: svc}
}

// Stream обрабатывает GET и HEAD /stream/{id}.
// Поддерживает Range requests (206, 416).
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if streamErr := h.svc.Serve(w, r, chi.URLParam(r, "id")); streamErr != nil {
		apierrors.WriteError(w, streamErr.StatusCode, streamErr.Code, streamErr.Message)
	}
}
