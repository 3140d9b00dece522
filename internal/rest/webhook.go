package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/dispatcher"
	"github.com/gin-gonic/gin"
)

// BatchDispatcher is the subset of *dispatcher.Dispatcher this controller
// needs, duck-typed for tests.
type BatchDispatcher interface {
	ProcessBatch(ctx context.Context, batch dispatcher.WebhookBatch)
}

// WebhookController handles the provider's webhook callback.
type WebhookController struct {
	dispatcher        BatchDispatcher
	processingTimeout time.Duration
}

func NewWebhookController(d BatchDispatcher, processingTimeout time.Duration) *WebhookController {
	return &WebhookController{dispatcher: d, processingTimeout: processingTimeout}
}

func (c *WebhookController) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/helius-webhook", c.handleWebhook)
}

// webhookResponse is the body spec.md §6 mandates on every reply to
// POST /helius-webhook: `{success, message, timestamp}`.
type webhookResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// handleWebhook acks 200 before dispatch begins (spec.md §4.4 step 2, §9
// "webhook-ack-before-processing"): the handler parses the batch, then
// hands it to the Dispatcher on a detached context so a client-side
// disconnect or the gin request context's cancellation never aborts
// in-flight classification. Spec.md §6 names only two response codes for
// this endpoint — 200 for a parsed batch, 500 for a pre-dispatch parse
// failure — so a malformed body is reported as 500, not 400.
func (c *WebhookController) handleWebhook(ctx *gin.Context) {
	var batch dispatcher.WebhookBatch
	if err := ctx.ShouldBindJSON(&batch); err != nil {
		ctx.JSON(http.StatusInternalServerError, webhookResponse{
			Success:   false,
			Message:   "invalid webhook payload",
			Timestamp: time.Now().UTC(),
		})
		return
	}

	ctx.JSON(http.StatusOK, webhookResponse{
		Success:   true,
		Message:   "accepted",
		Timestamp: time.Now().UTC(),
	})

	go func() {
		procCtx, cancel := context.WithTimeout(context.Background(), c.processingTimeout)
		defer cancel()
		c.dispatcher.ProcessBatch(procCtx, batch)
	}()
}
