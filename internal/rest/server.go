// Package rest is the inbound HTTP surface: the webhook receiver the
// blockchain-index provider posts transaction batches to (spec.md §4.4,
// §6), built the way the teacher builds its gin server
// (ingestion/internal/rest/gin.go).
package rest

import (
	"net/http"

	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/gin-gonic/gin"
)

// NewServer builds the gin engine and the *http.Server wrapping it,
// matching the teacher's construction exactly (gin.ReleaseMode,
// gin.Recovery, a bare health route wired here, webhook route registered
// by WebhookController).
func NewServer(cfg config.Config) (*gin.Engine, *http.Server) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": "copy-trader-broker", "status": "ok"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}
	return r, srv
}
