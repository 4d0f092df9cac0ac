package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"github.com/tanpawarit/Chative-Support-Router/agent/agents/orchestrator"
	"github.com/tanpawarit/Chative-Support-Router/agent/agents/specialist"
	contractx "github.com/tanpawarit/Chative-Support-Router/agent/contract"
	"github.com/tanpawarit/Chative-Support-Router/agent/escalation"
	llmx "github.com/tanpawarit/Chative-Support-Router/agent/llm"
	statex "github.com/tanpawarit/Chative-Support-Router/agent/state"
	toolx "github.com/tanpawarit/Chative-Support-Router/agent/tool"
	"github.com/tanpawarit/Chative-Support-Router/commerce"
	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
	"github.com/tanpawarit/Chative-Support-Router/pkg/config"
	"github.com/tanpawarit/Chative-Support-Router/pkg/database"
	"github.com/tanpawarit/Chative-Support-Router/pkg/qstash"
	"github.com/tanpawarit/Chative-Support-Router/pkg/telemetry"
)

// app is the wired router with everything that must be closed on exit.
type app struct {
	orch   *orchestrator.Orchestrator
	db     *bun.DB
	qstash *qstash.Client

	shutdownTelemetry telemetry.Shutdown
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(ctx))
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

func openDatabase(ctx context.Context) (*bun.DB, error) {
	dbCfg, err := config.New[database.Config]("DATABASE")
	if err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	return database.Open(ctx, *dbCfg)
}

func newApp(ctx context.Context) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	otelCfg, err := config.New[telemetry.Config]("OTEL")
	if err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	if a.shutdownTelemetry, err = telemetry.Init(ctx, *otelCfg); err != nil {
		return nil, err
	}

	llmCfg, err := config.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, fmt.Errorf("openrouter config: %w", err)
	}
	routerCfg, err := config.New[orchestrator.Config]("ROUTER")
	if err != nil {
		return nil, fmt.Errorf("router config: %w", err)
	}

	if a.db, err = openDatabase(ctx); err != nil {
		return nil, err
	}
	service := commerce.NewService(storex.New(a.db))
	tools := toolx.NewGateway(service)

	registry, err := specialist.NewRegistry(ctx, *llmCfg, routerCfg.RetryPolicy())
	if err != nil {
		return nil, err
	}

	store, err := newStateStore()
	if err != nil {
		return nil, err
	}
	notifier, err := a.newNotifier()
	if err != nil {
		return nil, err
	}

	a.orch, err = orchestrator.New(store, registry, tools, *routerCfg,
		orchestrator.WithEscalationNotifier(notifier),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// newStateStore keeps sessions in Upstash Redis when configured, in memory
// otherwise.
func newStateStore() (statex.Store, error) {
	redisCfg, err := config.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		return nil, fmt.Errorf("upstash redis config: %w", err)
	}
	if !redisCfg.Enabled() {
		log.Info().Msg("session store: memory")
		return statex.NewMemoryStore(), nil
	}
	log.Info().Msg("session store: upstash redis")
	return statex.NewUpstashRedisStore(*redisCfg)
}

// newNotifier publishes escalations through QStash when a destination and
// token are configured and only logs them otherwise. The QStash client is
// kept for verifying callback signatures.
func (a *app) newNotifier() (contractx.EscalationNotifier, error) {
	qCfg, err := config.New[qstash.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("qstash config: %w", err)
	}
	escCfg, err := config.New[escalation.Config]("QSTASH")
	if err != nil {
		return nil, fmt.Errorf("escalation config: %w", err)
	}

	if qCfg.Enabled() || qCfg.CurrentSigningKey != "" {
		if a.qstash, err = qstash.NewClient(*qCfg); err != nil {
			return nil, err
		}
	}
	if a.qstash == nil || !qCfg.Enabled() || !escCfg.Enabled() {
		log.Info().Msg("escalation notifier: log")
		return escalation.LogNotifier{}, nil
	}
	log.Info().Str("destination", escCfg.Destination).Msg("escalation notifier: qstash")
	return escalation.NewQStashNotifier(a.qstash, *escCfg)
}
