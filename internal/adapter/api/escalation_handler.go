package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/service"
)

// EscalationHandler exposes the manual sweep triggers and the chat webhook.
type EscalationHandler struct {
	escalator *service.Escalator
	lifecycle *service.Lifecycle
	log       *zap.Logger
}

func NewEscalationHandler(escalator *service.Escalator, lifecycle *service.Lifecycle, log *zap.Logger) *EscalationHandler {
	return &EscalationHandler{
		escalator: escalator,
		lifecycle: lifecycle,
		log:       log,
	}
}

// CheckOverdue runs the overdue pass on demand and returns its report.
func (h *EscalationHandler) CheckOverdue(c *gin.Context) {
	report, err := h.escalator.CheckOverdueTasks(c.Request.Context())
	if err != nil {
		DomainError(c, err)
		return
	}
	Success(c, report)
}

// Webhook accepts an inbound chat message directly, for gateways that POST
// instead of publishing to the broker. The body shares the queue's format.
func (h *EscalationHandler) Webhook(c *gin.Context) {
	var msg domain.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		Error(c, http.StatusBadRequest, "invalid message", err.Error())
		return
	}

	if err := h.lifecycle.HandleMessage(c.Request.Context(), &msg); err != nil {
		h.log.Error("Webhook message handling failed",
			zap.String("message_id", msg.MessageID), zap.Error(err))
		DomainError(c, err)
		return
	}
	Success(c, gin.H{"message_id": msg.MessageID})
}
