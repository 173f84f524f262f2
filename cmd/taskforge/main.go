// Command taskforge runs the multi-agent orchestration engine.
//
// Usage:
//
//	taskforge serve --config config.yaml
//	taskforge validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/taskforge/internal/capability"
	"github.com/kadirpekel/taskforge/internal/circuitbreaker"
	"github.com/kadirpekel/taskforge/internal/config"
	"github.com/kadirpekel/taskforge/internal/engine"
	"github.com/kadirpekel/taskforge/internal/eventstore"
	"github.com/kadirpekel/taskforge/internal/logging"
	"github.com/kadirpekel/taskforge/internal/metrics"
	"github.com/kadirpekel/taskforge/internal/repository"
	"github.com/kadirpekel/taskforge/internal/server"
	"github.com/kadirpekel/taskforge/internal/task"
	"github.com/kadirpekel/taskforge/internal/tracing"
)

// CLI defines the command-line interface, grounded on cmd/hector/main.go's
// kong.CLI struct (global flags plus one Run(cli *CLI) error method per
// subcommand).
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the orchestration server."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config   string `short:"c" help:"Path to config file." type:"path"`
	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run(_ *CLI) error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("taskforge version %s\n", version)
	return nil
}

// ValidateCmd loads the configured file and reports whether it parses.
type ValidateCmd struct {
	Dump bool `help:"Print the fully-resolved configuration (file + env + defaults) as YAML."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	fmt.Printf("config OK: server.addr=%s repository.backend=%s\n", cfg.Server.Addr, cfg.Repository.Backend)

	if c.Dump {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("validate: marshaling resolved config: %w", err)
		}
		fmt.Println("---")
		fmt.Print(string(out))
	}
	return nil
}

// ServeCmd starts the HTTP/WS server over a freshly wired engine.
type ServeCmd struct {
	Watch bool `help:"Watch the config file and hot-reload the log level on change."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logging.Init(logging.ParseLevel(cli.LogLevel), os.Stderr)

	if c.Watch && cli.Config != "" {
		watcher, err := config.Watch(cli.Config, func(newCfg *config.Config) {
			slog.Info("config reloaded", "log_level", newCfg.Logging.Level)
			logging.Init(logging.ParseLevel(newCfg.Logging.Level), os.Stderr)
		})
		if err != nil {
			slog.Warn("config watch disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	repo, err := buildRepository(cfg.Repository)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	m := metrics.New()
	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		Timeout:          cfg.Breaker.Timeout,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
	}, nil)
	breaker.OnTransition(func(agentID string, from, to circuitbreaker.State) {
		slog.Info("circuit transition", "agent", agentID, "from", from, "to", to)
		m.RecordBreakerTransition(agentID, string(from), string(to))
	})

	shutdownTracing, err := tracing.Init(cfg.Tracing, os.Stderr)
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	events := eventstore.New(cfg.EventStore.RingCapacity, cfg.EventStore.TaskCapacity)
	schemas := task.NewSchemaRegistry()

	completion := capability.NopCompletion{}
	planner := engine.NewPlanner(completion)
	qa := engine.NewQAHandler(completion)
	executor := engine.NewAgentExecutor(completion)
	narrator := engine.NewFinalNarrator(completion)

	eng := engine.New(planner, qa, executor, narrator, breaker, events, repo, schemas, task.PatternExtractor{})
	eng.SetMetrics(m)
	eng.SetTracer(tracing.GetTracer("taskforge/engine"))

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, eng, events, breaker, m)

	return srv.Start(ctx)
}

func buildRepository(cfg config.RepositoryConfig) (repository.Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		return repository.NewMemory(), nil
	case "file":
		return repository.NewFile(cfg.Path)
	case "sqlite":
		return repository.NewSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown repository backend %q", cfg.Backend)
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("taskforge"),
		kong.Description("Multi-agent orchestration engine."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
