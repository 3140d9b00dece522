// Package commands implements the capability-based command dispatch
// described for the Bus Adapter (spec.md §4.5): "Consumer handlers are
// registered by capability (canHandle(message) + handle(message)); the
// first handler whose canHandle returns true is invoked. If none, the
// message is acked with a warning (to prevent poison-pill redelivery
// loops)." It drives the three inbound "commands" queues
// (subscription_commands, kol_management, service_commands).
package commands

import (
	"context"
	"log"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
)

// Handler answers whether it owns a message and, if so, processes it.
type Handler interface {
	CanHandle(msg bus.Message) bool
	Handle(ctx context.Context, msg bus.Message) error
}

// Router dispatches to the first Handler whose CanHandle matches.
type Router struct {
	logger   *log.Logger
	handlers []Handler
}

func NewRouter(logger *log.Logger, handlers ...Handler) *Router {
	return &Router{logger: logger, handlers: handlers}
}

// Handle implements bus.HandlerFunc.
func (r *Router) Handle(ctx context.Context, msg bus.Message) error {
	for _, h := range r.handlers {
		if h.CanHandle(msg) {
			return h.Handle(ctx, msg)
		}
	}
	r.logger.Printf("commands: no handler for routing key %q on %s, acking to avoid poison-pill redelivery", msg.RoutingKey, msg.Exchange)
	return nil
}
