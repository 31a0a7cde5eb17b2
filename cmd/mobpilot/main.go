// Command mobpilot drives a mobile device toward a natural-language goal.
//
// Default mode runs one task:
//
//	mobpilot -goal "Open settings and enable dark mode"
//
// The screen-api mode serves the screen API (SSE consumer of the device
// bridge plus /screen-info, /health, /streaming-status) for the agent and
// other clients to poll:
//
//	mobpilot screen-api
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/nvasilev/mobpilot"
	"github.com/nvasilev/mobpilot/internal/config"
	"github.com/nvasilev/mobpilot/observer"
	"github.com/nvasilev/mobpilot/provider/openaicompat"
	"github.com/nvasilev/mobpilot/screenapi"
	"github.com/nvasilev/mobpilot/store/postgres"
	"github.com/nvasilev/mobpilot/store/sqlite"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[mobpilot] ")

	_ = godotenv.Load()

	if len(os.Args) > 1 && os.Args[1] == "screen-api" {
		runScreenAPI(os.Args[2:])
		return
	}
	runTask(os.Args[1:])
}

func runTask(args []string) {
	fs := flag.NewFlagSet("mobpilot", flag.ExitOnError)
	var (
		goal       = fs.String("goal", "", "natural-language goal for the device task (required)")
		configPath = fs.String("config", os.Getenv("MOBPILOT_CONFIG"), "path to mobpilot.toml")
		name       = fs.String("name", "", "task name used in trace directories")
		profile    = fs.String("profile", "", "LLM profile override for all agents")
		maxSteps   = fs.Int("max-steps", 0, "agent step budget (0 = default)")
		lockedApp  = fs.String("locked-app", "", "package the task must stay inside")
		outputDesc = fs.String("output", "", "description of the desired final answer")
		recTrace   = fs.Bool("trace", false, "record screenshots and thoughts per step")
		verbose    = fs.Bool("v", false, "debug logging")
	)
	_ = fs.Parse(args)

	if *goal == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg := config.Load(*configPath)

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []mobpilot.AgentOption{
		mobpilot.WithAgentLogger(logger),
	}

	factory := mobpilot.ProviderFactory(openaicompat.Factory)
	if cfg.Observer.Enabled {
		if cfg.Observer.Endpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observer.Endpoint)
		}
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		inst, shutdown, err := observer.Init(ctx, pricing)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		}()
		factory = observer.WrapFactory(factory, inst)
		opts = append(opts, mobpilot.WithAgentTracer(observer.NewTracer()))
	}
	opts = append(opts, mobpilot.WithProviderFactory(factory))

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	if store != nil {
		opts = append(opts, mobpilot.WithTaskStore(store))
	}

	agent := mobpilot.New(cfg, opts...)
	if err := agent.Init(ctx); err != nil {
		log.Fatalf("init: %v", err)
	}
	defer func() {
		if err := agent.Clean(); err != nil {
			log.Printf("clean: %v", err)
		}
	}()

	builder := agent.NewTask(*goal)
	if *name != "" {
		builder.WithName(*name)
	}
	if *profile != "" {
		builder.UsingProfile(*profile)
	}
	if *maxSteps > 0 {
		builder.WithMaxSteps(*maxSteps)
	}
	if *lockedApp != "" {
		builder.WithLockedAppPackage(*lockedApp)
	}
	if *outputDesc != "" {
		builder.WithOutputDescription(*outputDesc)
	}
	if *recTrace {
		builder.WithTraceRecording()
	}
	builder.WithStatusCallback(func(status mobpilot.TaskStatus) {
		log.Printf("task status: %s", status)
	})

	result, err := agent.RunTask(ctx, builder.Build())
	if err != nil {
		log.Fatalf("task %s: %v", result.Status, err)
	}

	fmt.Println(result.Content)
	if len(result.Structured) > 0 {
		fmt.Println(string(result.Structured))
	}
}

// openStore builds the configured TaskStore, or nil when persistence is
// disabled.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (mobpilot.TaskStore, error) {
	switch cfg.Store.Driver {
	case "":
		return nil, nil
	case "sqlite":
		s := sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, err
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func runScreenAPI(args []string) {
	fs := flag.NewFlagSet("mobpilot screen-api", flag.ExitOnError)
	var (
		configPath = fs.String("config", os.Getenv("MOBPILOT_CONFIG"), "path to mobpilot.toml")
		listen     = fs.String("listen", "", "bind address (overrides config)")
	)
	_ = fs.Parse(args)

	cfg := config.Load(*configPath)
	addr := cfg.Servers.ScreenAPIListen
	if *listen != "" {
		addr = *listen
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := screenapi.New(cfg.Servers.BridgeURL, screenapi.WithLogger(logger))
	server.Start(ctx)

	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		log.Printf("screen api listening on %s (bridge %s)", addr, cfg.Servers.BridgeURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	log.Println("stopped")
}
