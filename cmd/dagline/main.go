// dagline runs and inspects workflow DAG documents: `serve` starts the
// REST adapter, `run`/`resume`/`validate` are the single-shot CLI
// surface spec §6 names, grounded on the teacher's cmd/cli and
// cmd/server split folded into one binary.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/dagline/dagline/internal/api/rest"
	"github.com/dagline/dagline/internal/cache"
	"github.com/dagline/dagline/internal/checkpoint"
	"github.com/dagline/dagline/internal/config"
	"github.com/dagline/dagline/internal/logger"
	"github.com/dagline/dagline/pkg/dag"
	"github.com/dagline/dagline/pkg/engine"
	"github.com/dagline/dagline/pkg/executor"
	"github.com/dagline/dagline/pkg/executor/builtin"
	"github.com/dagline/dagline/pkg/models"
	"github.com/dagline/dagline/pkg/sandbox"
)

const usage = `dagline - workflow DAG execution engine

USAGE:
    dagline <command> [arguments]

COMMANDS:
    serve              Start the REST adapter
    run <file>         Execute a workflow document to completion
    resume <id>        Recover an execution from its latest checkpoint
    validate <file>    Run structural validation only (no execution)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe()
	case "run":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "dagline run: missing workflow file")
			os.Exit(1)
		}
		cmdRun(os.Args[2])
	case "resume":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "dagline resume: missing execution id")
			os.Exit(1)
		}
		cmdResume(os.Args[2])
	case "validate":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "dagline validate: missing workflow file")
			os.Exit(1)
		}
		cmdValidate(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "dagline: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(1)
	}
}

func loadWorkflow(path string) (*models.Workflow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var wf models.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("decode workflow document: %w", err)
	}
	return &wf, nil
}

func newRegistry(log *logger.Logger) (*executor.Registry, error) {
	reg := executor.NewRegistry()
	pool := sandbox.NewPool(sandbox.PoolOptions{})
	if err := builtin.RegisterAll(reg, pool, log); err != nil {
		return nil, fmt.Errorf("register builtin executors: %w", err)
	}
	return reg, nil
}

// cmdValidate runs C1 only, exiting 1 on a validation failure per
// spec §6's CLI exit-code table.
func cmdValidate(path string) {
	wf, err := loadWorkflow(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dagline validate:", err)
		os.Exit(1)
	}
	if _, err := dag.BuildAndValidate(wf); err != nil {
		fmt.Fprintln(os.Stderr, "validation failed:", err)
		os.Exit(1)
	}
	fmt.Println("valid")
	os.Exit(0)
}

// cmdRun executes a workflow document to completion in-process,
// exiting 1 when the document fails validation and 2 on execution
// failure.
func cmdRun(path string) {
	wf, err := loadWorkflow(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dagline run:", err)
		os.Exit(1)
	}

	reg, err := newRegistry(logger.Default())
	if err != nil {
		fmt.Fprintln(os.Stderr, "dagline run:", err)
		os.Exit(1)
	}

	sched := engine.NewScheduler(reg, engine.SchedulerOptions{})
	ec, err := sched.Launch(context.Background(), wf, nil, wf.GlobalVariables, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "launch failed:", err)
		var ve *models.ValidationError
		if errors.Is(err, models.ErrWorkflowInvalid) || errors.As(err, &ve) {
			os.Exit(1)
		}
		os.Exit(2)
	}

	out, _ := json.MarshalIndent(ec, "", "  ")
	fmt.Println(string(out))

	if ec.Status == models.ExecutionStatusFailed {
		os.Exit(2)
	}
	os.Exit(0)
}

// cmdResume recovers an execution from its latest durable checkpoint,
// exiting 3 on recovery failure. This command requires
// DAGLINE_DATABASE_URL to be reachable, unlike `run`/`validate`.
func cmdResume(executionID string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "dagline resume:", err)
		os.Exit(3)
	}

	sqldb := bun.NewDB(connectPostgres(cfg.Database.URL), pgdialect.New())
	defer func() { _ = sqldb.Close() }()
	store := checkpoint.NewStore(sqldb)

	reg, err := newRegistry(logger.Default())
	if err != nil {
		fmt.Fprintln(os.Stderr, "dagline resume:", err)
		os.Exit(3)
	}
	sched := engine.NewScheduler(reg, engine.SchedulerOptions{Checkpoint: store})
	planner := checkpoint.NewRecoveryPlanner(store, sched)

	ec, err := planner.Recover(context.Background(), executionID, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "recovery failed:", err)
		os.Exit(3)
	}

	out, _ := json.MarshalIndent(ec, "", "  ")
	fmt.Println(string(out))
	os.Exit(0)
}

func connectPostgres(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// cmdServe wires the full engine (checkpoint store, read-through
// cache, event hub) behind the REST adapter and blocks until an
// interrupt signal, grounded on the teacher's cmd/server/main.go
// startup/shutdown sequencing.
func cmdServe() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging)
	logger.SetDefault(log)

	sqldb := bun.NewDB(connectPostgres(cfg.Database.URL), pgdialect.New())
	defer func() { _ = sqldb.Close() }()

	store := checkpoint.NewStore(sqldb)
	if err := store.Migrate(context.Background()); err != nil {
		log.Error("checkpoint schema migration failed", "error", err)
		os.Exit(1)
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn("redis cache unavailable, recovery reads will hit the store directly", "error", err)
	}

	var reader rest.ExecutionReader = store
	if redisCache != nil {
		defer func() { _ = redisCache.Close() }()
		reader = cache.NewCheckpointCache(redisCache, store, 30*time.Second)
	}

	reg, err := newRegistry(log)
	if err != nil {
		log.Error("executor registration failed", "error", err)
		os.Exit(1)
	}

	hub := rest.NewEventHub(log)

	sched := engine.NewScheduler(reg, engine.SchedulerOptions{
		Checkpoint:         store,
		Notifier:           hub,
		DefaultNodeTimeout: cfg.Engine.DefaultNodeTimeout,
		DefaultRetry: engine.RetryPolicy{
			MaxAttempts:   1,
			InitialDelay:  cfg.Engine.RetryInitialDelay,
			MaxDelay:      cfg.Engine.RetryMaxDelay,
			BackoffFactor: cfg.Engine.RetryBackoffFactor,
		},
	})
	planner := checkpoint.NewRecoveryPlanner(store, sched)

	handlers := rest.NewExecutionHandlers(sched, reader, planner, log)
	router := rest.NewRouter(handlers, hub, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("dagline REST adapter starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		log.Info("shutdown initiated", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
			_ = srv.Close()
		}
		log.Info("server stopped")
	}
}
