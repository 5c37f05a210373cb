package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/course-api/internal/service"
)

// WebhookHandler принимает уведомления платежного провайдера
type WebhookHandler struct {
	fulfillmentService *service.FulfillmentService
}

// NewWebhookHandler создает новый обработчик вебхуков
func NewWebhookHandler(fulfillmentService *service.FulfillmentService) *WebhookHandler {
	return &WebhookHandler{fulfillmentService: fulfillmentService}
}

// CheckoutCompleted обрабатывает уведомление о завершенной оплате.
// Провайдер доставляет at-least-once и ретраит все не-2xx ответы,
// поэтому некорректные уведомления подтверждаются после логирования:
// ретрай битого payload не даст другого результата. 500 возвращается
// только при отказе инфраструктуры — такой ретрай безопасен, обработка
// идемпотентна.
func (h *WebhookHandler) CheckoutCompleted(c *gin.Context) {
	var n service.PaymentNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		log.Printf("[Webhook] АНОМАЛИЯ: некорректное уведомление об оплате: %v", err)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.fulfillmentService.Process(c.Request.Context(), n); err != nil {
		log.Printf("[Webhook] Ошибка обработки уведомления ref=%s: %v", n.PaymentReference, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
