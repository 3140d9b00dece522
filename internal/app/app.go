// Package app centralizes dependency wiring for the copy-trading broker,
// the way the teacher's ingestion/internal/app.go and matcher/internal/app.go
// each wire one service's dependencies behind a single App (spec.md §9
// "singletons -> explicit construction").
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/blok-hamster/copy-trader-service/internal/bus"
	"github.com/blok-hamster/copy-trader-service/internal/commands"
	"github.com/blok-hamster/copy-trader-service/internal/config"
	"github.com/blok-hamster/copy-trader-service/internal/dispatcher"
	"github.com/blok-hamster/copy-trader-service/internal/mlscorer"
	"github.com/blok-hamster/copy-trader-service/internal/provider"
	"github.com/blok-hamster/copy-trader-service/internal/rest"
	"github.com/blok-hamster/copy-trader-service/internal/routine"
	"github.com/blok-hamster/copy-trader-service/internal/rpc"
	"github.com/blok-hamster/copy-trader-service/internal/store"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App centralizes dependency wiring for the broker service.
type App struct {
	cfg    config.Config
	logger *log.Logger

	redis      *redis.Client
	registry   *store.Registry
	gate       *store.Gate
	trades     *store.TradeHistory
	publisher  *bus.Publisher
	rpcServer  *bus.RPCServer
	dispatch   *dispatcher.Dispatcher
	provider   *provider.Client
	scorer     *mlscorer.Client
	routines   *routine.Manager
	consumers  []*bus.Consumer
	httpServer *http.Server
}

// NewApp builds an App with all required dependencies.
func NewApp(cfg config.Config, logger *log.Logger) *App {
	redisClient := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	providerClient := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, 30*time.Second)
	scorerClient := mlscorer.NewClient(cfg.MLScorerURL, cfg.MLScorerTimeout)

	registry := store.NewRegistry(redisClient, providerClient, cfg, logger)
	gate := store.NewGate(redisClient, cfg)
	trades := store.NewTradeHistory(redisClient, cfg)
	metrics := store.NewMetrics(redisClient, cfg)

	publisher := bus.NewPublisher(cfg.KafkaBrokers, cfg.Namespace)
	rpcServer := bus.NewRPCServer(cfg.KafkaBrokers, cfg.Namespace, cfg.QueueRPC)

	dispatch := dispatcher.NewDispatcher(registry, gate, trades, publisher, scorerClient, metrics, cfg, logger)

	a := &App{
		cfg:       cfg,
		logger:    logger,
		redis:     redisClient,
		registry:  registry,
		gate:      gate,
		trades:    trades,
		publisher: publisher,
		rpcServer: rpcServer,
		dispatch:  dispatch,
		provider:  providerClient,
		scorer:    scorerClient,
		routines:  routine.NewManager(context.Background()),
	}

	rpc.NewServer(registry, gate, trades).Register(rpcServer)
	a.consumers = a.buildConsumers()
	return a
}

// buildConsumers wires the three inbound command queues (spec.md §6) behind
// capability-routed handlers (spec.md §4.5).
func (a *App) buildConsumers() []*bus.Consumer {
	retry := bus.RetryPolicy{MaxAttempts: a.cfg.RetryAttempts, BaseDelay: a.cfg.RetryBaseDelay}
	router := commands.NewRouter(a.logger,
		commands.NewSubscriptionHandler(a.registry),
		commands.NewKOLHandler(a.registry),
		commands.NewServiceHandler(a.registry),
	)

	return []*bus.Consumer{
		bus.NewConsumer(a.cfg.KafkaBrokers, a.cfg.Namespace, a.cfg.QueueSubscriptionCommands, bus.ExchangeCommands,
			[]bus.Binding{{Queue: a.cfg.QueueSubscriptionCommands, Exchange: bus.ExchangeCommands, RoutingKey: "subscription.*"}},
			router.Handle, retry, a.publisher),
		bus.NewConsumer(a.cfg.KafkaBrokers, a.cfg.Namespace, a.cfg.QueueKOLManagement, bus.ExchangeCommands,
			[]bus.Binding{{Queue: a.cfg.QueueKOLManagement, Exchange: bus.ExchangeCommands, RoutingKey: "kol.*"}},
			router.Handle, retry, a.publisher),
		bus.NewConsumer(a.cfg.KafkaBrokers, a.cfg.Namespace, a.cfg.QueueServiceCommands, bus.ExchangeCommands,
			[]bus.Binding{{Queue: a.cfg.QueueServiceCommands, Exchange: bus.ExchangeCommands, RoutingKey: "service.*"}},
			router.Handle, retry, a.publisher),
	}
}

// Run starts background services and blocks until ctx cancellation or
// fatal error, mirroring ingestion/internal/app.go's errgroup shape.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.runHTTPServer(gctx)
	})

	g.Go(func() error {
		if err := a.rpcServer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	})

	a.routines = routine.NewManager(gctx)
	for _, c := range a.consumers {
		c := c
		result := make(chan error, 1)
		task := &routine.Task{
			ID:      c.Queue,
			Handler: func(taskCtx context.Context) error { return a.superviseConsumer(taskCtx, c) },
			OnStart: func(id string) { a.logger.Printf("bus consumer %s: started", id) },
			OnError: func(id string, err error) { result <- fmt.Errorf("bus consumer %s: %w", id, err) },
			OnDone: func(id string) {
				select {
				case result <- nil:
				default:
				}
			},
		}
		if err := a.routines.RunTask(task); err != nil {
			return fmt.Errorf("start consumer task %s: %w", c.Queue, err)
		}
		g.Go(func() error { return <-result })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// superviseConsumer reconnects the bus consumer with exponential backoff
// on error (spec.md §9 "manual reconnect loops -> supervisor"), driven by
// the routine.Manager task above rather than exiting the whole process on
// the first disconnect.
func (a *App) superviseConsumer(ctx context.Context, c *bus.Consumer) error {
	const (
		baseDelay = time.Second
		maxDelay  = 30 * time.Second
		maxTries  = 10
	)

	delay := baseDelay
	for attempt := 0; attempt < maxTries; attempt++ {
		err := c.Run(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		a.logger.Printf("bus consumer %s: %v (attempt %d/%d, retrying in %s)", c.Queue, err, attempt+1, maxTries, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("bus consumer %s: exhausted %d reconnect attempts", c.Queue, maxTries)
}

func (a *App) runHTTPServer(ctx context.Context) error {
	r, srv := rest.NewServer(a.cfg)
	a.httpServer = srv
	webhookController := rest.NewWebhookController(a.dispatch, a.cfg.ProcessingTimeout)
	webhookController.RegisterRoutes(r.Group(""))

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Printf("HTTP server started at: %s", srv.Addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		err := <-serverErr
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *App) cleanup() {
	if a.routines != nil {
		if err := a.routines.ShutdownAll(); err != nil {
			a.logger.Printf("error shutting down consumer tasks: %v", err)
		}
	}
	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Printf("error closing bus consumer %s: %v", c.Queue, err)
		}
	}
	if err := a.rpcServer.Close(); err != nil {
		a.logger.Printf("error closing rpc server: %v", err)
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Printf("error closing bus publisher: %v", err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Printf("error closing redis client: %v", err)
		}
	}
}
