package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guillermoBallester/querylens/internal/adapter/cache"
	"github.com/guillermoBallester/querylens/internal/adapter/explain"
	"github.com/guillermoBallester/querylens/internal/adapter/httpapi"
	"github.com/guillermoBallester/querylens/internal/adapter/mcp"
	"github.com/guillermoBallester/querylens/internal/adapter/policy"
	"github.com/guillermoBallester/querylens/internal/adapter/postgres"
	"github.com/guillermoBallester/querylens/internal/adapter/sqlite"
	"github.com/guillermoBallester/querylens/internal/adapter/token"
	"github.com/guillermoBallester/querylens/internal/audit"
	"github.com/guillermoBallester/querylens/internal/config"
	"github.com/guillermoBallester/querylens/internal/core/domain"
	"github.com/guillermoBallester/querylens/internal/core/port"
	"github.com/guillermoBallester/querylens/internal/core/service"
	"github.com/guillermoBallester/querylens/internal/telemetry"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// serveFlags holds raw flag values; overrides turns the ones actually set
// into config.Overrides.
type serveFlags struct {
	secretKeyring       bool
	readOnlyKeyword     string
	groupBy             string
	cacheCapacity       int
	stackPolicyFile     string
	execution           bool
	driver              string
	databaseURL         string
	maxRows             int
	queryTimeout        time.Duration
	logLevel            string
	transport           string
	httpAddr            string
	httpBearerToken     string
	rateLimitRPS        float64
	rateLimitBurst      int
	inspectReplays      bool
	otel                bool
	auditLog            string
	poolMaxConns        int32
	poolMinConns        int32
	poolMaxConnLifetime time.Duration
}

func registerServeFlags(fs *pflag.FlagSet) *serveFlags {
	f := &serveFlags{}
	fs.BoolVar(&f.secretKeyring, "secret-keyring", false, "Read the signing secret from the OS keyring (overrides SECRET_KEYRING)")
	fs.StringVar(&f.readOnlyKeyword, "read-only-keyword", "", "Keyword a statement must start with to be replayable (overrides READ_ONLY_KEYWORD)")
	fs.StringVar(&f.groupBy, "group-by", "", "Grouping key: statement or rendered_sql (overrides GROUP_BY)")
	fs.IntVar(&f.cacheCapacity, "cache-capacity", 0, "Number of inspection results kept (overrides CACHE_CAPACITY)")
	fs.StringVar(&f.stackPolicyFile, "stack-policy-file", "", "Path to stack policy YAML (overrides STACK_POLICY_FILE)")
	fs.BoolVar(&f.execution, "execution", true, "Allow replaying statements against the database (overrides EXECUTION_ENABLED)")
	fs.StringVar(&f.driver, "driver", "", "Replay database driver: postgres or sqlite (overrides DRIVER)")
	fs.StringVar(&f.databaseURL, "database-url", "", "Postgres DSN or SQLite path (overrides DATABASE_URL)")
	fs.IntVar(&f.maxRows, "max-rows", 0, "Maximum rows returned by a replay (overrides MAX_ROWS)")
	fs.DurationVar(&f.queryTimeout, "query-timeout", 0, "Replay timeout, e.g. 10s (overrides QUERY_TIMEOUT)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	fs.StringVar(&f.transport, "transport", "", "Transport: http or stdio (overrides TRANSPORT)")
	fs.StringVar(&f.httpAddr, "http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	fs.StringVar(&f.httpBearerToken, "http-bearer-token", "", "Bearer token for HTTP auth (overrides HTTP_BEARER_TOKEN)")
	fs.Float64Var(&f.rateLimitRPS, "rate-limit-rps", 0, "Replay requests per second per client (overrides RATE_LIMIT_RPS)")
	fs.IntVar(&f.rateLimitBurst, "rate-limit-burst", 0, "Replay burst per client (overrides RATE_LIMIT_BURST)")
	fs.BoolVar(&f.inspectReplays, "inspect-replays", false, "Inspect and store the queries each replay request runs (overrides INSPECT_REPLAYS)")
	fs.BoolVar(&f.otel, "otel", false, "Enable OpenTelemetry tracing and metrics")
	fs.StringVar(&f.auditLog, "audit-log", "", "Path to NDJSON audit log of replayed statements")
	fs.Int32Var(&f.poolMaxConns, "pool-max-conns", 0, "Maximum connections in pool (overrides POOL_MAX_CONNS)")
	fs.Int32Var(&f.poolMinConns, "pool-min-conns", 0, "Minimum idle connections in pool (overrides POOL_MIN_CONNS)")
	fs.DurationVar(&f.poolMaxConnLifetime, "pool-max-conn-lifetime", 0, "Maximum connection lifetime, e.g. 30m (overrides POOL_MAX_CONN_LIFETIME)")
	return f
}

func (f *serveFlags) overrides(fs *pflag.FlagSet) config.Overrides {
	o := config.Overrides{
		OTelEnabled:    f.otel,
		InspectReplays: f.inspectReplays,
		AuditLog:       f.auditLog,
	}
	set := fs.Changed
	if set("secret-keyring") {
		o.SecretKeyring = &f.secretKeyring
	}
	if set("read-only-keyword") {
		o.ReadOnlyKeyword = &f.readOnlyKeyword
	}
	if set("group-by") {
		o.GroupBy = &f.groupBy
	}
	if set("cache-capacity") {
		o.CacheCapacity = &f.cacheCapacity
	}
	if set("stack-policy-file") {
		o.StackPolicyFile = &f.stackPolicyFile
	}
	if set("execution") {
		o.ExecutionEnabled = &f.execution
	}
	if set("driver") {
		o.Driver = &f.driver
	}
	if set("database-url") {
		o.DatabaseURL = &f.databaseURL
	}
	if set("max-rows") {
		o.MaxRows = &f.maxRows
	}
	if set("query-timeout") {
		o.QueryTimeout = &f.queryTimeout
	}
	if set("log-level") {
		o.LogLevel = &f.logLevel
	}
	if set("transport") {
		o.Transport = &f.transport
	}
	if set("http-addr") {
		o.HTTPAddr = &f.httpAddr
	}
	if set("http-bearer-token") {
		o.HTTPBearerToken = &f.httpBearerToken
	}
	if set("rate-limit-rps") {
		o.RateLimitRPS = &f.rateLimitRPS
	}
	if set("rate-limit-burst") {
		o.RateLimitBurst = &f.rateLimitBurst
	}
	if set("pool-max-conns") {
		o.PoolMaxConns = &f.poolMaxConns
	}
	if set("pool-min-conns") {
		o.PoolMinConns = &f.poolMinConns
	}
	if set("pool-max-conn-lifetime") {
		o.PoolMaxConnLifetime = &f.poolMaxConnLifetime
	}
	return o
}

// parseFlags parses serve flags outside cobra, for tests.
func parseFlags(args []string) (config.Overrides, error) {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.Usage = func() {}
	f := registerServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return config.Overrides{}, err
	}
	return f.overrides(fs), nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve inspection and replay over HTTP (REST and MCP) or MCP stdio",
		Args:  cobra.NoArgs,
	}
	f := registerServeFlags(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(f.overrides(cmd.Flags()))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()
		return runServe(ctx, cfg)
	}
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)

	logger.Info("starting querylens",
		slog.String("version", version),
		slog.String("log_level", cfg.LogLevel.String()),
		slog.String("transport", cfg.Transport),
		slog.String("group_by", string(cfg.GroupBy)),
		slog.Int("cache_capacity", cfg.CacheCapacity),
		slog.Bool("execution", cfg.ExecutionAvailable()),
		slog.Bool("otel", cfg.OTelEnabled),
		slog.Bool("inspect_replays", cfg.InspectReplays),
	)

	var (
		tracer trace.Tracer         = telemetry.NoopTracer()
		inst   port.Instrumentation = telemetry.NoopInstruments()
	)
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "querylens", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error", err.Error()))
			}
		}()
		tracer = telemetry.Tracer()
		inst = telemetry.NewInstruments()
	}

	key, err := resolveSecret(cfg)
	if err != nil {
		return err
	}
	codec, err := token.NewCodec(key, domain.NewReadOnlyPolicy(cfg.ReadOnlyKeyword))
	if err != nil {
		return fmt.Errorf("creating token codec: %w", err)
	}

	pol := policy.Default()
	if cfg.StackPolicyFile != "" {
		if pol, err = policy.LoadFromFile(cfg.StackPolicyFile); err != nil {
			return fmt.Errorf("loading stack policy: %w", err)
		}
		logger.Info("stack policy loaded", slog.String("file", cfg.StackPolicyFile))
	}

	store, err := cache.NewFIFO(cfg.CacheCapacity, func(key string) {
		inst.IncrementCacheEvictions(ctx)
		logger.Debug("inspection evicted", slog.String("key", key))
	})
	if err != nil {
		return err
	}

	executor, closeDB, err := openExecutor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()
	var explainer port.QueryExecutor
	if executor != nil {
		explainer = explain.NewExecutor(executor, cfg.Driver)
	}

	var auditor port.QueryAuditor = port.NoopAuditor{}
	if cfg.AuditLog != "" {
		fa, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer fa.Close()
		auditor = fa
		logger.Info("audit logging enabled", slog.String("path", cfg.AuditLog))
	}

	aggregator := domain.NewAggregator(codec, pol.Classifier(), pol.StackPolicy(), cfg.GroupBy)
	inspectSvc := service.NewInspectService(aggregator, store, executor != nil, logger, tracer, inst)
	replaySvc := service.NewReplayService(codec, executor, explainer, store, auditor, logger, pol.MaskSpec(), tracer, inst)

	mcpServer := mcp.NewServer(version, inspectSvc, replaySvc, logger, tracer, inst)

	switch cfg.Transport {
	case config.TransportHTTP:
		router := httpapi.NewRouter(httpapi.Options{
			Inspector:   inspectSvc,
			Replayer:    replaySvc,
			Logger:      logger,
			BearerToken: cfg.HTTPBearerToken,
			RateLimit: httpapi.RateLimitConfig{
				RequestsPerSecond: cfg.RateLimitRPS,
				Burst:             cfg.RateLimitBurst,
			},
			InspectReplays: cfg.InspectReplays,
			MCP:            mcpserver.NewStreamableHTTPServer(mcpServer),
		})
		err = serveHTTP(ctx, cfg.HTTPAddr, router, logger)
	default:
		logger.Info("serving MCP over stdio")
		err = mcpserver.NewStdioServer(mcpServer).Listen(ctx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	}
	if err != nil {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}

// openExecutor connects the replay database. It returns a nil executor and a
// no-op closer when execution is disabled.
func openExecutor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (port.QueryExecutor, func(), error) {
	if !cfg.ExecutionAvailable() {
		logger.Info("query execution disabled")
		return nil, func() {}, nil
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database connected",
			slog.String("db.system", "sqlite"),
			slog.String("path", cfg.DatabaseURL),
		)
		return sqlite.NewExecutor(db, cfg.MaxRows, cfg.QueryTimeout), func() { _ = db.Close() }, nil
	default:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns:        cfg.PoolMaxConns,
			MinConns:        cfg.PoolMinConns,
			MaxConnLifetime: cfg.PoolMaxConnLifetime,
			Tracer:          postgres.NewQueryTracer(),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database pool connected",
			slog.String("db.system", "postgresql"),
			slog.String("dsn", redactDSN(cfg.DatabaseURL)),
			slog.Int("pool_max_conns", int(cfg.PoolMaxConns)),
		)
		return postgres.NewExecutor(pool, cfg.MaxRows, cfg.QueryTimeout), pool.Close, nil
	}
}

// serveHTTP runs srv until ctx is cancelled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving HTTP", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
