package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
	"github.com/blok-hamster/copy-trader-service/internal/domain"
	"github.com/blok-hamster/copy-trader-service/internal/store"
)

// SubscriptionHandler owns the subscription_commands queue, applying
// fire-and-forget create/remove commands the RPC surface's
// createUserSubscription/removeUserSubscription also expose synchronously.
type SubscriptionHandler struct {
	registry *store.Registry
}

func NewSubscriptionHandler(registry *store.Registry) *SubscriptionHandler {
	return &SubscriptionHandler{registry: registry}
}

func (h *SubscriptionHandler) CanHandle(msg bus.Message) bool {
	return msg.RoutingKey == bus.RoutingSubscriptionCreated || msg.RoutingKey == bus.RoutingSubscriptionRemoved
}

func (h *SubscriptionHandler) Handle(ctx context.Context, msg bus.Message) error {
	switch msg.RoutingKey {
	case bus.RoutingSubscriptionCreated:
		var sub domain.Subscription
		if err := json.Unmarshal(msg.Body, &sub); err != nil {
			return fmt.Errorf("unmarshal subscription.created: %w", err)
		}
		_, err := h.registry.AddSubscription(ctx, sub)
		return err
	case bus.RoutingSubscriptionRemoved:
		var in struct {
			UserID    string `json:"userId"`
			KOLWallet string `json:"kolWallet"`
		}
		if err := json.Unmarshal(msg.Body, &in); err != nil {
			return fmt.Errorf("unmarshal subscription.removed: %w", err)
		}
		_, err := h.registry.RemoveSubscription(ctx, in.UserID, in.KOLWallet)
		return err
	default:
		return nil
	}
}
