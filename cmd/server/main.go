package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	authhandler "deepname/internal/auth/handler"
	"deepname/internal/auth/nonce"
	authservice "deepname/internal/auth/service"
	"deepname/internal/auth/session"
	"deepname/internal/auth/siwe"
	"deepname/internal/events"
	"deepname/internal/events/outbox"
	mediahandler "deepname/internal/media/handler"
	mediaservice "deepname/internal/media/service"
	"deepname/internal/media/stego"
	mediastore "deepname/internal/media/store"
	"deepname/internal/mint/chain"
	minthandler "deepname/internal/mint/handler"
	mintservice "deepname/internal/mint/service"
	"deepname/internal/mint/sources"
	mintstore "deepname/internal/mint/store"
	"deepname/internal/platform/config"
	"deepname/internal/platform/database"
	"deepname/internal/platform/health"
	"deepname/internal/platform/httpserver"
	"deepname/internal/platform/kafka"
	"deepname/internal/platform/kafka/producer"
	"deepname/internal/platform/logger"
	"deepname/internal/platform/metrics"
	redisplatform "deepname/internal/platform/redis"
	"deepname/internal/platform/tracer"
	ratelimitmw "deepname/internal/ratelimit/middleware"
	ratelimitmodels "deepname/internal/ratelimit/models"
	ratelimitstore "deepname/internal/ratelimit/store"
	httptransport "deepname/internal/transport/http"
	verificationhandler "deepname/internal/verification/handler"
	"deepname/internal/verification/humanity"
	"deepname/internal/verification/humanity/worldid"
	"deepname/internal/verification/identity"
	"deepname/internal/verification/identity/selfid"
	"deepname/internal/verification/records"
	verificationstore "deepname/internal/verification/store"
	"deepname/internal/workers/cleanup"
	"deepname/migrations"
	"deepname/pkg/platform/circuit"
)

// infra holds the optional backing services; nil fields are not configured.
type infra struct {
	db       *database.Pool
	redis    *redisplatform.Client
	producer producer.Publisher
	eth      *ethclient.Client
}

func (i *infra) close(log *slog.Logger) {
	if err := i.producer.Close(); err != nil {
		log.Warn("kafka producer close failed", "error", err)
	}
	if i.eth != nil {
		i.eth.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			log.Warn("database close failed", "error", err)
		}
	}
}

func main() {
	cfg, err := config.FromEnv()
	log := logger.New(os.Stdout, cfg.LogLevel, cfg.Env)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.Info("initializing deepname",
		"addr", cfg.Server.Addr,
		"env", cfg.Env,
		"store", cfg.StoreKind,
	)

	in, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close(log)

	m := metrics.New()
	tr := tracer.NewOTel("deepname")
	// With Postgres available, events are staged in the outbox.
	var emitter events.Emitter = events.NewPublisher(in.producer, cfg.Kafka.Topic, log)
	var relay *outbox.Worker
	if in.db != nil && cfg.Kafka.Brokers != "" {
		pending := outbox.NewPostgres(in.db.DB())
		emitter = outbox.NewRecorder(pending, log)
		relay = outbox.NewWorker(pending, in.producer, cfg.Kafka.Topic,
			outbox.WithLogger(log),
			outbox.WithMetrics(outbox.NewMetrics()),
		)
	}

	// Verification records and the two proof flows.
	st, err := verificationStore(cfg, in)
	if err != nil {
		return err
	}
	recs := records.New(st, records.WithLogger(log), records.WithMetrics(m))

	humanitySvc := humanity.New(
		worldid.New(cfg.WorldID.AppID, cfg.WorldID.Timeout, worldid.WithBaseURL(cfg.WorldID.BaseURL)),
		recs,
		cfg.WorldID.Action,
		humanity.WithLogger(log),
		humanity.WithMetrics(m),
		humanity.WithTracer(tr),
		humanity.WithEvents(emitter),
		humanity.WithTimeouts(cfg.Humanity.ProofTimeout, cfg.Humanity.VerifyTimeout),
	)
	userIDType := selfid.UserIDType(cfg.Self.UserIDType)
	identitySvc := identity.New(
		selfid.New(cfg.Self.VerifierURL, selfid.Settings{
			Scope:      cfg.Self.Scope,
			Endpoint:   cfg.Self.CallbackURL,
			UserIDType: userIDType,
			DevMode:    cfg.Self.DevMode,
		}, cfg.Self.Timeout),
		recs,
		userIDType,
		identity.WithLogger(log),
		identity.WithMetrics(m),
		identity.WithTracer(tr),
		identity.WithEvents(emitter),
		identity.WithTimeouts(cfg.Identity.ProofTimeout, cfg.Identity.VerifyTimeout),
		identity.WithRequireRoot(cfg.Self.RequireRoot),
	)

	// Wallet sign-in.
	var nonces authservice.NonceStore
	var expiringNonces cleanup.NonceStore
	if in.redis != nil {
		nonces = nonce.NewRedis(in.redis)
	} else {
		memNonces := nonce.NewInMemoryStore()
		nonces, expiringNonces = memNonces, memNonces
	}
	siweOpts := []siwe.Option{siwe.WithDomain(cfg.Session.Domain)}
	if in.eth != nil {
		siweOpts = append(siweOpts, siwe.WithContractCaller(in.eth))
	}
	sessions := session.NewManager(cfg.Session.SigningKey, "deepname", cfg.Session.TTL)
	authSvc := authservice.New(nonces, siwe.NewVerifier(siweOpts...), sessions, cfg.Session.NonceTTL,
		authservice.WithLogger(log),
		authservice.WithMetrics(m),
	)

	mintSvc, err := newMintService(ctx, cfg, in, recs, log, m, tr, emitter)
	if err != nil {
		return err
	}
	defer mintSvc.Close()

	media := mediastore.NewInMemoryStore()
	var (
		embedder     mediaservice.Embedder
		embedBreaker *circuit.Breaker
	)
	if cfg.Media.StegoURL != "" {
		embedBreaker = circuit.New("stego",
			circuit.WithFailureThreshold(cfg.Media.BreakerFailures),
			circuit.WithCooldown(cfg.Media.BreakerCooldown),
		)
		embedder = stego.New(cfg.Media.StegoURL, cfg.Media.Timeout,
			stego.WithBreaker(embedBreaker),
			stego.WithBreakerObserver(m.SetEmbedBreakerOpen),
		)
	} else {
		log.Warn("STEGO_URL not set; recordings are shared without embedding")
	}
	mediaSvc := mediaservice.New(embedder, media, cfg.Media.EmbedPayload, cfg.Media.ArtifactTTL,
		mediaservice.WithLogger(log),
		mediaservice.WithMetrics(m),
		mediaservice.WithTracer(tr),
		mediaservice.WithTimeout(cfg.Media.Timeout),
	)

	cleanupOpts := []cleanup.Option{cleanup.WithLogger(log)}
	if expiringNonces != nil {
		cleanupOpts = append(cleanupOpts, cleanup.WithNonces(expiringNonces))
	}

	var rateLimit func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		limits := rateLimits(cfg.RateLimit)
		var limiter ratelimitmw.Limiter
		if in.redis != nil {
			limiter = ratelimitstore.NewRedis(in.redis)
		} else {
			memLimits := ratelimitstore.NewInMemory()
			limiter = memLimits
			cleanupOpts = append(cleanupOpts, cleanup.WithRateLimits(memLimits, 10*time.Minute))
		}
		rateLimit = ratelimitmw.New(limiter, limits, log, ratelimitmw.WithObserver(m)).
			Routes(httptransport.RateLimitedRoutes)
	}
	sweeper, err := cleanup.New(media, cleanupOpts...)
	if err != nil {
		return fmt.Errorf("create cleanup worker: %w", err)
	}

	healthHandler := health.New(cfg.Env)
	if in.db != nil {
		healthHandler.RegisterCheck("postgres", in.db.Health)
	}
	if in.redis != nil {
		healthHandler.RegisterCheck("redis", in.redis.Health)
	}
	if cfg.Kafka.Brokers != "" {
		healthHandler.RegisterOptional("kafka", kafka.BrokerCheck(cfg.Kafka.Brokers, 2*time.Second))
	}
	if embedBreaker != nil {
		healthHandler.RegisterOptional("embedding", func(context.Context) error {
			if embedBreaker.State() == circuit.StateOpen {
				return errors.New("circuit open")
			}
			return nil
		})
	}
	if in.eth != nil {
		healthHandler.RegisterOptional("chain", func(ctx context.Context) error {
			_, err := in.eth.BlockNumber(ctx)
			return err
		})
	}

	router := httptransport.NewRouter(httptransport.Config{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		TrustProxy:     cfg.Server.TrustProxy,
	}, httptransport.Deps{
		Logger:       log,
		Sessions:     sessions,
		Latency:      m,
		RateLimit:    rateLimit,
		Health:       healthHandler,
		Auth:         authhandler.New(authSvc, sessions, log, cfg.Session.SecureCookie),
		Verification: verificationhandler.New(humanitySvc, identitySvc, recs, log),
		Mint:         minthandler.New(mintSvc, log),
		Media:        mediahandler.New(mediaSvc, log, cfg.Media.MaxUploadBytes, cfg.Media.PublicBaseURL),
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// connect opens every configured backing service. Postgres is migrated on
// start.
func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{producer: producer.NoopProducer{}}

	db, err := database.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	if db != nil {
		applied, err := db.Migrate(ctx, migrations.FS)
		if err != nil {
			db.Close() //nolint:errcheck // startup failure
			return nil, err
		}
		if len(applied) > 0 {
			log.Info("applied migrations", "versions", applied)
		}
		prometheus.MustRegister(db.Collector())
		in.db = db
	}

	rc, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		in.close(log)
		return nil, err
	}
	if rc != nil {
		prometheus.MustRegister(rc.Collector())
	}
	in.redis = rc

	if cfg.Kafka.Brokers != "" {
		prod, err := producer.New(cfg.Kafka, log)
		if err != nil {
			in.close(log)
			return nil, err
		}
		in.producer = prod
	} else {
		log.Info("KAFKA_BROKERS not set; domain events are dropped")
	}

	if cfg.Chain.RPCURL != "" {
		eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
		if err != nil {
			in.close(log)
			return nil, fmt.Errorf("connect to chain rpc: %w", err)
		}
		in.eth = eth
	}
	return in, nil
}

func verificationStore(cfg config.Config, in *infra) (verificationstore.Store, error) {
	switch cfg.StoreKind {
	case "postgres":
		if in.db == nil {
			return nil, errors.New("postgres store selected without a database")
		}
		return verificationstore.NewPostgres(in.db.DB()), nil
	case "redis":
		if in.redis == nil {
			return nil, errors.New("redis store selected without redis")
		}
		return verificationstore.NewRedis(in.redis), nil
	default:
		return verificationstore.NewInMemoryStore(), nil
	}
}

// newMintService builds the orchestrator. Missing chain settings do not stop
// the server: mint requests report them as a configuration failure.
func newMintService(
	ctx context.Context,
	cfg config.Config,
	in *infra,
	recs *records.Records,
	log *slog.Logger,
	m *metrics.Metrics,
	tr tracer.Tracer,
	emitter events.Emitter,
) (*mintservice.Service, error) {
	var attempts mintstore.Store = mintstore.NewInMemoryStore()
	if in.db != nil {
		attempts = mintstore.NewPostgres(in.db.DB())
	}

	opts := []mintservice.Option{
		mintservice.WithLogger(log),
		mintservice.WithMetrics(m),
		mintservice.WithTracer(tr),
		mintservice.WithEvents(emitter),
		mintservice.WithTimeouts(cfg.Mint.SubmitTimeout, cfg.Mint.ConfirmTimeout),
	}

	missing := cfg.Chain.MissingChain()
	if len(missing) > 0 || in.eth == nil {
		log.Warn("chain not configured; minting disabled", "missing", missing)
		opts = append(opts, mintservice.WithMissingChain(missing))
		return mintservice.New(sources.NewStore(recs), attempts, nil, opts...), nil
	}

	chainID := big.NewInt(cfg.Chain.ChainID)
	if cfg.Chain.ChainID == 0 {
		id, err := in.eth.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("read chain id: %w", err)
		}
		chainID = id
	}
	registrar, err := chain.NewRegistrar(in.eth, cfg.Chain, chainID)
	if err != nil {
		return nil, err
	}
	log.Info("minting enabled",
		"chain_id", chainID.String(),
		"registry", cfg.Chain.RegistryAddress,
		"sender", registrar.From().Hex(),
	)
	return mintservice.New(sources.NewStore(recs), attempts, registrar, opts...), nil
}

func rateLimits(cfg config.RateLimitConfig) map[ratelimitmodels.Class]ratelimitmodels.Limit {
	return map[ratelimitmodels.Class]ratelimitmodels.Limit{
		ratelimitmodels.ClassProof:   {Requests: cfg.ProofPerMin, Window: time.Minute},
		ratelimitmodels.ClassSession: {Requests: cfg.SessionPerMin, Window: time.Minute},
		ratelimitmodels.ClassMint:    {Requests: cfg.MintPerMin, Window: time.Minute},
		ratelimitmodels.ClassMedia:   {Requests: cfg.MediaPer10Min, Window: 10 * time.Minute},
	}
}
