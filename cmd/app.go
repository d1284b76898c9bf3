package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"hostel-agent/internal/booking"
	"hostel-agent/internal/breaker"
	"hostel-agent/internal/config"
	"hostel-agent/internal/domain"
	"hostel-agent/internal/escalation"
	"hostel-agent/internal/integrations/bookingapi"
	"hostel-agent/internal/integrations/gateway"
	"hostel-agent/internal/integrations/paramstore"
	"hostel-agent/internal/knowledge"
	"hostel-agent/internal/llm"
	"hostel-agent/internal/metrics"
	"hostel-agent/internal/persistence"
	"hostel-agent/internal/pricing"
	"hostel-agent/internal/ratelimit"
	"hostel-agent/internal/repository"
	"hostel-agent/internal/statestore"
	"hostel-agent/internal/usecase"
	"hostel-agent/internal/workflow"
)

// app holds the long-lived components and shuts them down in order.
type app struct {
	router        *usecase.Router
	breakers      *breaker.Registry
	webhookSecret string

	store   *statestore.Store[*domain.ConversationState]
	limiter *ratelimit.Limiter
	bridge  *persistence.Bridge
	cascade *escalation.Cascade
	closers []func() error
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{logger: logger}
	m := metrics.New(reg)

	// ---- AWS (only when something needs it) ----
	var secrets *paramstore.Client
	var dynamo *awsdynamodb.Client
	if needsAWS(cfg) {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWS.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		secrets, err = paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		dynamo = awsdynamodb.NewFromConfig(awsCfg)
	}

	if ref := cfg.Server.WebhookSecretRef; ref != "" {
		secret, err := secrets.Resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolving webhook secret: %w", err)
		}
		a.webhookSecret = secret
	}

	// ---- Conversation state ----
	durable, closeStore, err := openStore(ctx, cfg, dynamo, logger)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}
	a.bridge = persistence.NewBridge(durable,
		persistence.WithDebounce(cfg.Conversation.PersistDebounce),
		persistence.WithLogger(logger),
		persistence.WithObserver(m),
	)
	a.store = statestore.New[*domain.ConversationState](
		statestore.WithTTL(cfg.Conversation.TTL),
		statestore.WithSweepInterval(cfg.Conversation.SweepInterval),
		statestore.WithLogger(logger),
		statestore.WithOnExpire(a.bridge.Remove),
	)
	restored := 0
	for _, st := range a.bridge.LoadActiveStates(ctx, a.store.TTL()) {
		if a.store.Restore(st.Key, st, st.LastActiveAt) {
			restored++
		}
	}
	logger.Info("conversation state loaded", "driver", cfg.Store.Driver, "restored", restored)
	m.RegisterActiveConversations(func() float64 { return float64(a.store.Size()) })

	// ---- LLM providers ----
	breakerOpts := []breaker.RegistryOption{
		breaker.WithTransitionHook(m.BreakerTransition),
		breaker.WithLogger(logger),
	}
	for id, bc := range cfg.LLM.BreakerOverrides {
		breakerOpts = append(breakerOpts, breaker.WithOverride(id, bc))
	}
	a.breakers = breaker.NewRegistry(cfg.LLM.Breaker, breakerOpts...)

	providers, smart, err := llm.BuildProviders(ctx, cfg.LLM.Providers, secrets)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		logger.Warn("no llm providers configured; free-form messages get the unavailable reply")
	}
	chain := llm.NewChain(providers, a.breakers,
		llm.WithSmartProviders(smart...),
		llm.WithTimeout(cfg.LLM.Timeout),
		llm.WithContextWindow(cfg.LLM.ContextWindow, cfg.LLM.SmartContextWindow),
		llm.WithChainLogger(logger),
		llm.WithObserver(m),
	)

	// ---- Outbound integrations ----
	gatewayToken := ""
	if ref := cfg.Gateway.TokenRef; ref != "" {
		if gatewayToken, err = secrets.Resolve(ctx, ref); err != nil {
			return nil, fmt.Errorf("resolving gateway token: %w", err)
		}
	}
	transport, err := gateway.NewClient(cfg.Gateway.URL,
		gateway.WithToken(gatewayToken),
		gateway.WithSendPath(cfg.Gateway.SendPath),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var api booking.API
	if cfg.Booking.APIURL != "" {
		client, err := bookingapi.NewClient(cfg.Booking.APIURL, bookingapi.WithToken(secrets, cfg.Booking.TokenRef))
		if err != nil {
			return nil, err
		}
		api = client
	} else {
		logger.Warn("booking.api_url not set; confirmed bookings will be cancelled")
	}

	// ---- Dialogs and content ----
	prices, err := pricing.New(cfg.Booking.Pricing)
	if err != nil {
		return nil, err
	}
	machine := booking.NewMachine(prices, api, booking.WithLogger(logger))

	actions, err := usecase.NewStepActions(transport, api, logger)
	if err != nil {
		return nil, err
	}
	var defs []domain.Workflow
	if dir := cfg.Content.WorkflowsDir; dir != "" {
		if defs, err = workflow.LoadDir(dir); err != nil {
			return nil, err
		}
	}
	engine, err := workflow.NewEngine(defs, llm.NewEvaluator(chain),
		workflow.WithEnhancer(actions),
		workflow.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	a.limiter = ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	routerOpts := []usecase.Option{
		usecase.WithBooking(machine),
		usecase.WithWorkflows(engine),
		usecase.WithPersister(a.bridge),
		usecase.WithRateLimiter(a.limiter),
		usecase.WithRecorder(m),
		usecase.WithHistoryLimit(cfg.Conversation.HistoryLimit),
		usecase.WithUnknownThreshold(cfg.Escalation.UnknownThreshold),
		usecase.WithSmartThreshold(cfg.LLM.SmartThreshold),
		usecase.WithHostelName(cfg.Hostel.Name),
		usecase.WithLogger(logger),
	}
	if path := cfg.Content.KnowledgeFile; path != "" {
		src, err := knowledge.LoadFile(path)
		if err != nil {
			return nil, err
		}
		routerOpts = append(routerOpts, usecase.WithKnowledge(src))
	}

	// ---- Escalation ----
	if len(cfg.Escalation.Operators) > 0 {
		activity := escalation.NewActivity()
		a.cascade, err = escalation.NewCascade(cfg.Escalation.Operators, transport,
			escalation.WithReplyDetector(activity.RepliedSince),
			escalation.WithLogger(logger),
			escalation.WithObserver(m),
		)
		if err != nil {
			return nil, err
		}
		routerOpts = append(routerOpts,
			usecase.WithEscalator(a.cascade),
			usecase.WithOperatorActivity(activity),
		)
	} else {
		logger.Warn("no escalation operators configured")
	}

	a.router, err = usecase.NewRouter(a.store, transport, chain, routerOpts...)
	if err != nil {
		return nil, err
	}
	logger.Info("assistant ready",
		"providers", chain.Providers(),
		"workflows", engine.IDs(),
		"operators", len(cfg.Escalation.Operators),
	)
	return a, nil
}

// sweepLimiter drops idle rate-limit windows until ctx is done.
func (a *app) sweepLimiter(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = ratelimit.DefaultWindow
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.limiter.Sweep()
		}
	}
}

// close flushes pending writes and stops timers. Conversations stay in the
// durable store for the next start.
func (a *app) close() {
	if a.cascade != nil {
		a.cascade.Destroy()
	}
	a.bridge.Flush()
	a.bridge.Wait()
	a.bridge.Destroy()
	a.store.Destroy()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("closing store", "err", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, dynamo *awsdynamodb.Client, logger *slog.Logger) (persistence.Store, func() error, error) {
	sc := cfg.Store
	switch sc.Driver {
	case config.StoreDynamoDB:
		if dynamo == nil {
			return nil, nil, fmt.Errorf("dynamodb store requires AWS configuration")
		}
		c, err := repository.New(dynamo, sc.Table, repository.WithRetention(sc.Retention))
		return c, nil, err
	case config.StoreRedis:
		s := repository.NewRedisStore(sc.RedisAddr, sc.RedisPassword, sc.RedisDB,
			repository.WithRedisRetention(sc.Retention),
			repository.WithRedisLogger(logger),
		)
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := repository.OpenSQL(ctx, repository.DialectPostgres, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StoreSQLite:
		s, err := repository.OpenSQL(ctx, repository.DialectSQLite, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return persistence.NopStore{}, nil, nil
	}
}

// needsAWS reports whether the DynamoDB store or any ssm: secret is in use.
func needsAWS(cfg *config.Config) bool {
	if cfg.Store.Driver == config.StoreDynamoDB {
		return true
	}
	refs := []string{cfg.Server.WebhookSecretRef, cfg.Gateway.TokenRef, cfg.Booking.TokenRef}
	for _, p := range cfg.LLM.Providers {
		refs = append(refs, p.APIKey)
	}
	for _, r := range refs {
		if strings.HasPrefix(strings.TrimSpace(r), "ssm:") {
			return true
		}
	}
	return false
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	return metrics.Handler(reg)
}
