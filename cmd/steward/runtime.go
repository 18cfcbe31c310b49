// Package main provides runtime wiring for the steward CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vinayprograms/agentkit/credentials"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"steward/internal/backup"
	"steward/internal/config"
	"steward/internal/events"
	"steward/internal/executor"
	"steward/internal/interpret"
	"steward/internal/judge"
	"steward/internal/orchestrator"
	"steward/internal/plan"
	"steward/internal/registry"
	"steward/internal/secrets"
	"steward/internal/session"
)

// runtime holds the wired components behind the CLI commands.
type runtime struct {
	cfg   *config.Config
	creds *credentials.Credentials

	provider llm.Provider
	registry *registry.Registry
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
	telem    telemetry.Exporter

	closers []func()
}

// newRuntime loads configuration and builds all components.
func newRuntime(configPath string) (*runtime, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, creds: globalCreds}
	if err := rt.setup(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) setup() error {
	if err := os.MkdirAll(rt.cfg.StoragePath(), 0755); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	if err := rt.createProvider(); err != nil {
		return err
	}
	if err := rt.setupTelemetry(); err != nil {
		return err
	}
	if err := rt.setupRegistry(); err != nil {
		return err
	}
	return rt.setupOrchestrator()
}

// createProvider creates the LLM provider shared by all stages.
func (rt *runtime) createProvider() error {
	provider := rt.cfg.LLM.Provider
	if provider == "" {
		provider = llm.InferProviderFromModel(rt.cfg.LLM.Model)
	}
	if provider == "" && rt.cfg.LLM.Model == "" {
		return fmt.Errorf("LLM model not configured")
	}

	apiKey := rt.cfg.GetAPIKey()
	if apiKey == "" && rt.creds != nil {
		apiKey = rt.creds.GetAPIKey(provider)
	}

	var err error
	rt.provider, err = llm.NewProvider(llm.ProviderConfig{
		Provider:  provider,
		Model:     rt.cfg.LLM.Model,
		APIKey:    apiKey,
		MaxTokens: rt.cfg.LLM.MaxTokens,
		BaseURL:   rt.cfg.LLM.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	return nil
}

// setupTelemetry creates the telemetry exporter.
func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

// setupRegistry registers builtin tools and applies the optional catalog.
func (rt *runtime) setupRegistry() error {
	rt.registry = registry.New()
	registry.RegisterBuiltins(rt.registry, rt.provider)

	if rt.cfg.Execute.Catalog == "" {
		return nil
	}
	catalog, err := registry.LoadCatalog(rt.cfg.Execute.Catalog)
	if err != nil {
		return fmt.Errorf("loading tool catalog: %w", err)
	}
	if err := rt.registry.Apply(catalog); err != nil {
		return fmt.Errorf("applying tool catalog: %w", err)
	}
	return nil
}

// setupOrchestrator builds the pipeline stages and session storage.
func (rt *runtime) setupOrchestrator() error {
	store, err := rt.createStore()
	if err != nil {
		return err
	}
	rt.sessions = session.NewManager(store)

	scorer := judge.New(rt.provider, rt.cfg.Interpret.ConfidenceThreshold)
	interp := interpret.New(rt.provider, scorer, rt.cfg.Interpret.MaxQuestions)
	planner := plan.New(rt.provider, rt.registry, rt.cfg.Plan.QualityThreshold, rt.cfg.Plan.MaxIterations)

	snapshots, err := backup.NewFileSnapshotter(rt.cfg.BackupPath())
	if err != nil {
		return fmt.Errorf("creating backup store: %w", err)
	}
	exec := executor.New(rt.registry, snapshots, secrets.NewCredentialsProvider(),
		time.Duration(rt.cfg.Execute.StepTimeout)*time.Second)

	ocfg := orchestrator.DefaultConfig()
	ocfg.RequireApproval = rt.cfg.Plan.RequireApproval
	ocfg.StepRetries = rt.cfg.Execute.StepRetries
	if d, err := time.ParseDuration(rt.cfg.Execute.StageTimeout); err == nil && d > 0 {
		ocfg.StageTimeout = d
	}
	if d, err := time.ParseDuration(rt.cfg.Plan.ApprovalTimeout); err == nil && d > 0 {
		ocfg.MaxIdle = d
	}

	var sinks []events.Sink
	if rt.cfg.Events.NATSURL != "" {
		natsSink, err := events.NewNATSSink(rt.cfg.Events.NATSURL, rt.cfg.Events.Subject)
		if err != nil {
			return fmt.Errorf("connecting event mirror: %w", err)
		}
		rt.addCloser(natsSink.Close)
		sinks = append(sinks, natsSink)
	}

	rt.orch = orchestrator.New(rt.sessions, interp, planner, exec, ocfg, sinks...)
	return nil
}

// createStore builds the configured session store backend.
func (rt *runtime) createStore() (session.Store, error) {
	switch rt.cfg.Storage.Backend {
	case "", "file":
		return session.NewFileStore(filepath.Join(rt.cfg.StoragePath(), "sessions"))
	case "sqlite":
		store, err := session.OpenSQLiteStore(filepath.Join(rt.cfg.StoragePath(), "sessions.db"))
		if err != nil {
			return nil, err
		}
		rt.addCloser(func() { store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", rt.cfg.Storage.Backend)
	}
}

// drive advances a session until it reaches a checkpoint or terminal state.
func (rt *runtime) drive(ctx context.Context, id string) (*session.Session, error) {
	for {
		sess, err := rt.orch.GetStatus(id)
		if err != nil {
			return nil, err
		}
		switch sess.State {
		case session.StateInterpreting, session.StatePlanning, session.StateExecuting:
			if _, err := rt.orch.Advance(ctx, id); err != nil {
				return nil, err
			}
		default:
			return sess, nil
		}
	}
}

func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
