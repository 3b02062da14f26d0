package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/stirosario/sti-ai-chat-sub010/pkg/audit"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/casestate"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/config"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/contract"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/enforcement"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/flow"
	"github.com/stirosario/sti-ai-chat-sub010/pkg/observability"
)

// telemetryShutdownTimeout bounds the final span and metric flush.
const telemetryShutdownTimeout = 5 * time.Second

// app holds the wired subsystems shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *observability.Provider
	registry *contract.Registry
	gate     *casestate.CELGate
	chain    *audit.ChainStore
	engine   *enforcement.Engine
	closers  []func() error
}

// setup loads the contract table and the case-state policy and builds the
// engine with every configured sink.
func setup(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: cfg.NewLogger(stderr),
		chain:  audit.NewChainStore(),
	}

	provider, err := observability.New(ctx, cfg.Observability())
	if err != nil {
		return nil, err
	}
	a.provider = provider
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		return provider.Shutdown(ctx)
	})

	// 1. Contracts
	_, done := provider.TrackOperation(ctx, "stagegate.load_contracts",
		attribute.String("path", cfg.ContractsPath))
	a.registry, err = loadRegistry(cfg.ContractsPath)
	done(err)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := observability.RegisterContractInfo(provider.Meter(), a.registry.Version(), a.registry.Hash()); err != nil {
		a.Close()
		return nil, err
	}

	// 2. Case-state policy
	a.gate, err = loadGate(cfg.PolicyPath, a.registry.Definition(), a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 3. Sinks
	sinks, err := a.sinks()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.engine = enforcement.New(a.registry, a.gate,
		enforcement.WithSink(enforcement.Sinks(sinks...)),
		enforcement.WithLogger(a.logger.With("component", "enforcement")),
		enforcement.WithTracer(provider.Tracer()),
	)

	a.logger.Debug("stage gate ready",
		"contracts_version", a.registry.Version(),
		"contracts_hash", a.registry.Hash(),
		"stages", len(a.registry.Stages()),
	)
	return a, nil
}

func loadRegistry(path string) (*contract.Registry, error) {
	if path == "" {
		return contract.Load(contract.DefaultTable(), flow.Default())
	}
	return contract.LoadFile(path, flow.Default())
}

func loadGate(path string, def flow.Definition, logger *slog.Logger) (*casestate.CELGate, error) {
	policy := casestate.DefaultPolicy()
	if path != "" {
		p, err := casestate.LoadPolicyFile(path)
		if err != nil {
			return nil, err
		}
		policy = p
	}
	return casestate.NewCELGate(policy,
		casestate.WithFlow(def),
		casestate.WithLogger(logger.With("component", "casestate")),
	)
}

func (a *app) sinks() ([]enforcement.Sink, error) {
	sinks := []enforcement.Sink{
		audit.NewLogSink(a.logger.With("component", "audit")),
		a.chain,
	}

	metrics, err := observability.NewEnforcementMetrics(a.provider.Meter())
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, metrics)

	if a.cfg.AuditDriver != "" {
		store, err := audit.OpenSQLStore(a.cfg.AuditDriver, a.cfg.AuditDSN)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		sinks = append(sinks, store)
	}

	if a.cfg.AuditCSV != "" {
		csvSink, err := audit.OpenCSVFile(a.cfg.AuditCSV)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, csvSink.Close)
		sinks = append(sinks, csvSink)
	}
	return sinks, nil
}

// Close releases sinks and flushes telemetry, in reverse order of setup.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
