package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bindu/internal/a2a"
	"bindu/internal/auth"
	"bindu/internal/authz"
	"bindu/internal/config"
	"bindu/internal/logger"
	"bindu/internal/messaging/kafka"
	"bindu/internal/metrics"
	"bindu/internal/middleware"
	"bindu/internal/observability"
	"bindu/internal/push"
	"bindu/internal/scheduler"
	"bindu/internal/store"
	"bindu/internal/worker"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent runtime HTTP server",
	Long: `serve wires the configured Storage, Scheduler, Worker pool and
Push dispatcher together behind the A2A JSON-RPC and discovery surface,
then listens until SIGINT/SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			os.Setenv("BINDU_LISTEN_ADDR", serveAddr)
		}
		if code := runServe(); code != 0 {
			return fmt.Errorf("bindu serve exited with code %d", code)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "override BINDU_LISTEN_ADDR (e.g. :8090)")
	rootCmd.AddCommand(serveCmd)
}

// runServe returns the process exit code: 0 for a clean shutdown, non-zero
// for any startup failure (spec §6 "Exit codes").
func runServe() int {
	logger.Init(logger.DefaultConfig())
	log := logger.WithComponent("main")

	cfg := config.Load()
	log.Info("starting bindu", "config", cfg.Snapshot())

	collector := metrics.NewCollector()

	if endpoint := getenv("BINDU_OTEL_ENDPOINT", ""); endpoint != "" {
		tp, err := observability.InitTracer(cfg.AgentName, endpoint)
		if err != nil {
			log.Warn("tracer initialization failed, continuing without tracing", "error", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
			log.Info("otel tracing enabled", "endpoint", endpoint)
		}
	}

	storage, err := buildStorage(cfg)
	if err != nil {
		log.Error("storage initialization failed", "error", err)
		return 1
	}
	defer storage.Close()

	sched, err := buildScheduler(cfg)
	if err != nil {
		log.Error("scheduler initialization failed", "error", err)
		return 1
	}
	defer sched.Close()

	var producer *kafka.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = kafka.NewProducer(cfg.KafkaBrokers)
		if err != nil {
			log.Warn("kafka producer initialization failed, push events will not be republished", "error", err)
		} else {
			defer producer.Close()
			go drainProducerAcks(producer, log)
			log.Info("kafka event republishing enabled", "brokers", cfg.KafkaBrokers)
		}
	}

	dispatcher := push.New(storage, push.Config{
		MaxRetries: cfg.PushMaxRetries,
		Timeout:    cfg.PushTimeout,
	}, producer, collector)

	pool := worker.NewPool(storage, sched, exampleHandler, worker.Config{
		WorkerCount: cfg.WorkerCount,
		PollTimeout: cfg.WorkerPollTimeout,
		RetryMax:    cfg.HandlerRetryMax,
	}, dispatcher, collector)
	if producer != nil {
		pool.SetMetricsPublisher(kafkaMetricsPublisher{producer: producer})
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	pool.Start(workerCtx)

	manager := a2a.NewManager(storage, sched, pool, cfg.PushEnabled)

	gate, err := buildPolicyGate(log)
	if err != nil {
		log.Error("policy gate initialization failed", "error", err)
		return 1
	}

	rpcServer := a2a.NewServer(manager, collector, a2a.WithPolicyGate(gate))

	skills := a2a.NewStaticRegistry(nil, nil)
	discovery := a2a.NewDiscoveryHandler(a2a.DiscoveryConfig{
		BaseURL:     getenv("BINDU_BASE_URL", "http://localhost"+cfg.ListenAddr),
		Name:        cfg.AgentName,
		Description: cfg.AgentDescription,
		Version:     cfg.AgentVersion,
		DID:         cfg.DID,
		PushEnabled: cfg.PushEnabled,
	}, skills)
	if producer != nil {
		publishAgentDiscovery(context.Background(), producer, discovery, cfg.DID, log)
	}
	skillHandler := a2a.NewSkillHandler(skills)
	negotiationHandler := a2a.NewNegotiationHandler(skills, storage, nil, []string{"text"}, []string{"text"})
	healthChecker := a2a.NewHealthChecker(storage, func() bool {
		_, derr := sched.Depth(context.Background())
		return derr == nil
	}, func() bool { return true })

	authVerifier, err := buildAuthVerifier()
	if err != nil {
		log.Error("auth initialization failed", "error", err)
		return 1
	}
	authenticator := middleware.NewAuthenticator(authVerifier)

	handler := buildHTTPHandler(cfg, rpcServer, discovery, skillHandler, negotiationHandler, healthChecker, collector, authenticator)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("bindu listening", "addr", cfg.ListenAddr)
		serveErr <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			return 1
		}
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
			return 1
		}
		stopWorkers()
		pool.Wait()
	}

	log.Info("bindu stopped cleanly")
	return 0
}

// buildStorage selects and opens the configured Storage backend
// (spec §4.1), retrying Postgres connection acquisition per the
// deployment's configured bounds to tolerate dependency warmup.
func buildStorage(cfg config.Config) (store.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageMemory:
		return store.NewMemory(), nil
	case config.StorageSQLite:
		return store.NewSQLite(cfg.SQLitePath)
	case config.StoragePostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("BINDU_STORAGE_BACKEND=postgres requires BINDU_POSTGRES_DSN")
		}
		return store.NewPostgres(context.Background(), cfg.PostgresDSN, cfg.DID,
			store.PoolConfig{
				MaxOpenConns:    cfg.PostgresPool.MaxOpenConns,
				MaxIdleConns:    cfg.PostgresPool.MaxIdleConns,
				ConnMaxLifetime: cfg.PostgresPool.ConnMaxLifetime,
				ConnMaxIdleTime: cfg.PostgresPool.ConnMaxIdleTime,
				OpTimeout:       cfg.PostgresPool.OpTimeout,
			},
			store.RetryConfig{
				Attempts:  cfg.ConnectRetryAttempts,
				BaseDelay: cfg.ConnectRetryBaseDelay,
			})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// buildScheduler selects and opens the configured Scheduler backend
// (spec §4.2).
func buildScheduler(cfg config.Config) (scheduler.Scheduler, error) {
	switch cfg.SchedulerBackend {
	case config.SchedulerMemory:
		return scheduler.NewMemory(cfg.SchedulerQueueDepth), nil
	case config.SchedulerRedis:
		return scheduler.NewRedis(context.Background(), scheduler.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, "bindu:tasks", scheduler.RetryConfig{
			Attempts:  cfg.ConnectRetryAttempts,
			BaseDelay: cfg.ConnectRetryBaseDelay,
		})
	default:
		return nil, fmt.Errorf("unknown scheduler backend %q", cfg.SchedulerBackend)
	}
}

// buildPolicyGate loads the Cedar policy set named by BINDU_CEDAR_POLICY_PATH
// when present, otherwise falls back to authz.AllowAll (spec §1: business
// authorization is a host collaborator's concern, not a hard Bindu
// dependency).
func buildPolicyGate(log *slog.Logger) (authz.PolicyGate, error) {
	path := getenv("BINDU_CEDAR_POLICY_PATH", "")
	if path == "" {
		return authz.AllowAll{}, nil
	}
	gate, err := authz.NewCedarGate(path)
	if err != nil {
		return nil, err
	}
	log.Info("cedar policy gate enabled", "policy_path", path)
	return gate, nil
}

func buildAuthVerifier() (*auth.Verifier, error) {
	authCfg, err := auth.LoadConfig()
	if err != nil {
		return nil, err
	}
	return auth.NewVerifier(authCfg), nil
}

// buildHTTPHandler assembles the routed mux and the global middleware
// chain: request-ID stamping, CORS, rate limiting, then bearer-token
// authentication on the JSON-RPC endpoint (spec §6).
func buildHTTPHandler(
	cfg config.Config,
	rpcServer *a2a.Server,
	discovery *a2a.DiscoveryHandler,
	skillHandler *a2a.SkillHandler,
	negotiationHandler *a2a.NegotiationHandler,
	healthChecker *a2a.HealthChecker,
	collector *metrics.Collector,
	authenticator *middleware.Authenticator,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/agent.json", discovery.ServeAgentCard)
	mux.HandleFunc("/did/resolve", discovery.ServeDIDResolve)
	mux.HandleFunc("/health", healthChecker.ServeHealth)
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/agent/skills", skillHandler.ServeList)
	mux.HandleFunc("/agent/skills/", skillHandler.ServeGet)
	mux.HandleFunc("/negotiation", negotiationHandler.ServeNegotiation)
	mux.Handle("/", authenticator.Require(rpcServer))

	handler := middleware.WithRequestContext(mux)
	handler = middleware.WithCORS(handler)

	rateLimiter := middleware.NewPathBasedRateLimiter(middleware.RateLimitConfig{
		AuthenticatedRate:   cfg.RateLimit.RequestsPerWindow,
		UnauthenticatedRate: cfg.RateLimit.RequestsPerWindow / 4,
		Window:              cfg.RateLimit.Window,
		BurstSize:           cfg.RateLimit.BurstSize,
		ExcludedPaths:       []string{"/health", "/metrics"},
	})
	handler = rateLimiter.Handler(handler)

	return handler
}

// exampleHandler is the reference agent function wired in when no
// deployment-specific handler is supplied: it echoes the caller's last
// message back, prefixed, demonstrating the plain-text classification
// branch of the structured-response protocol (spec §4.3, §9). A real
// deployment passes its own worker.Handler in place of this one.
func exampleHandler(ctx context.Context, history []worker.HistoryEntry) (any, error) {
	if len(history) == 0 {
		return "hello, I'm listening.", nil
	}
	last := history[len(history)-1]
	var text string
	for _, part := range last.Content {
		if part.Type == "text" {
			text += part.Text
		}
	}
	select {
	case <-ctx.Done():
		return nil, worker.ErrCancelled
	default:
	}
	return "echo: " + text, nil
}

// drainProducerAcks drains the Sarama async producer's Successes/Errors
// channels for the life of the process. sarama.Config.Producer.Return.*
// is set to true in kafka.NewProducer, so an undrained channel here would
// eventually block every Input() send across the whole producer.
func drainProducerAcks(producer *kafka.Producer, log *slog.Logger) {
	successes := producer.Successes()
	errs := producer.Errors()
	for {
		select {
		case msg, ok := <-successes:
			if !ok {
				return
			}
			log.Debug("kafka message delivered", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		case perr, ok := <-errs:
			if !ok {
				return
			}
			log.Warn("kafka message delivery failed", "error", perr.Err)
		}
	}
}

// kafkaMetricsPublisher adapts *kafka.Producer to worker.MetricsPublisher,
// keeping the worker package free of a direct Kafka import.
type kafkaMetricsPublisher struct {
	producer *kafka.Producer
}

func (k kafkaMetricsPublisher) PublishTaskMetrics(ctx context.Context, taskID string, queueWaitMs, executionMs int64, retryCount int, finalState string) {
	_ = k.producer.SendMetrics(ctx, kafka.TaskMetrics{
		Timestamp:   time.Now(),
		TaskID:      taskID,
		QueueWaitMs: queueWaitMs,
		ExecutionMs: executionMs,
		RetryCount:  retryCount,
		FinalState:  finalState,
	})
}

// publishAgentDiscovery announces this deployment's Agent Card on the
// discovery topic at startup, letting an external registry learn about
// new or restarted agents without polling /.well-known/agent.json.
func publishAgentDiscovery(ctx context.Context, producer *kafka.Producer, discovery *a2a.DiscoveryHandler, did string, log *slog.Logger) {
	card, err := json.Marshal(discovery.Card())
	if err != nil {
		log.Warn("failed to marshal agent card for discovery event", "error", err)
		return
	}
	event := kafka.AgentDiscoveryEvent{
		EventID:   uuid.NewString(),
		DID:       did,
		Action:    "registered",
		AgentCard: card,
		Timestamp: time.Now(),
	}
	if err := producer.SendAgentDiscovery(ctx, event); err != nil {
		log.Warn("failed to publish agent discovery event", "error", err)
	}
}
