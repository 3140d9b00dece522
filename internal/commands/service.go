package commands

import (
	"context"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
	"github.com/blok-hamster/copy-trader-service/internal/store"
)

// ServiceHandler owns the service_commands queue. service.sync runs
// Registry.SyncWithProvider, the full reconciliation of the provider's
// address list against the active set; subscribe/unsubscribe only append or
// remove the single affected wallet and never run it.
type ServiceHandler struct {
	registry *store.Registry
}

func NewServiceHandler(registry *store.Registry) *ServiceHandler {
	return &ServiceHandler{registry: registry}
}

func (h *ServiceHandler) CanHandle(msg bus.Message) bool {
	return msg.RoutingKey == bus.RoutingServiceSync
}

func (h *ServiceHandler) Handle(ctx context.Context, _ bus.Message) error {
	return h.registry.SyncWithProvider(ctx)
}
