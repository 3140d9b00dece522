package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
	"github.com/blok-hamster/copy-trader-service/internal/store"
)

// KOLHandler owns the kol_management queue, mirroring the RPC surface's
// addKolWalletToWebhook/removeKolWalletFromWebhook as fire-and-forget commands.
type KOLHandler struct {
	registry *store.Registry
}

func NewKOLHandler(registry *store.Registry) *KOLHandler {
	return &KOLHandler{registry: registry}
}

func (h *KOLHandler) CanHandle(msg bus.Message) bool {
	return msg.RoutingKey == bus.RoutingKOLAdded || msg.RoutingKey == bus.RoutingKOLRemoved
}

func (h *KOLHandler) Handle(ctx context.Context, msg bus.Message) error {
	var in struct {
		KOLWallet string `json:"kolWallet"`
	}
	if err := json.Unmarshal(msg.Body, &in); err != nil {
		return fmt.Errorf("unmarshal %s: %w", msg.RoutingKey, err)
	}

	switch msg.RoutingKey {
	case bus.RoutingKOLAdded:
		return h.registry.AddKOLWallet(ctx, in.KOLWallet)
	case bus.RoutingKOLRemoved:
		return h.registry.RemoveKOLWallet(ctx, in.KOLWallet)
	default:
		return nil
	}
}
