package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/baechuer/account-service/internal/application/account"
	"github.com/baechuer/account-service/internal/audit"
	"github.com/baechuer/account-service/internal/config"
	"github.com/baechuer/account-service/internal/infrastructure/db/postgres"
	"github.com/baechuer/account-service/internal/infrastructure/memory"
	"github.com/baechuer/account-service/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/account-service/internal/infrastructure/redis"
	"github.com/baechuer/account-service/internal/infrastructure/security"
	"github.com/baechuer/account-service/internal/logger"
	"github.com/baechuer/account-service/internal/transport/http/dto"
	"github.com/baechuer/account-service/internal/transport/http/handlers"
	"github.com/baechuer/account-service/internal/transport/http/middleware"
	"github.com/baechuer/account-service/internal/transport/http/response"
	"github.com/baechuer/account-service/internal/transport/http/router"
)

/*
========================
 Public entry (prod)
========================
*/

func NewServer() (*http.Server, func(), error) {
	return newServer(defaultDeps())
}

// NewServerWithDeps allows injecting dependencies for testing
func NewServerWithDeps(deps Deps) (*http.Server, func(), error) {
	return newServer(deps)
}

/*
========================
 Dependency injection
========================
*/

type Deps struct {
	LoadConfig func() (*config.Config, error)

	NewDB   func(dsn string, debug bool) (*sql.DB, error)
	Migrate func(ctx context.Context, db *sql.DB) error

	NewRedis func(addr, password string, db int) *redis.Client

	NewDispatcher func(url, exchange string) (account.EmailDispatcher, error)

	NewRouter func(router.Deps) (http.Handler, error)

	// Metrics is where audit collectors are registered.
	Metrics prometheus.Registerer
}

// storage is the backend-specific half of the wiring.
type storage struct {
	tx    account.TxManager
	users account.UserRepo
	roles account.RoleRepo
	toks  account.TokenRepo
	audit audit.Appender
	ping  handlers.Pinger
}

/*
========================
 Core bootstrap logic
========================
*/

func newServer(deps Deps) (*http.Server, func(), error) {
	// 0) config
	cfg, err := deps.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	fail := func(err error) (*http.Server, func(), error) {
		runCleanup(cleanupFns)
		return nil, nil, err
	}

	readiness := map[string]handlers.Pinger{}

	// 1) storage
	var st storage
	switch cfg.Store {
	case config.StoreMemory:
		logger.Logger.Warn().Msg("using in-memory store; data is lost on restart")
		st = memoryStorage()
	default:
		db, err := deps.NewDB(cfg.DBAddr, cfg.DBDebug)
		if err != nil {
			return fail(err)
		}
		cleanupFns = append(cleanupFns, func() { _ = db.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = deps.Migrate(ctx, db)
		cancel()
		if err != nil {
			return fail(fmt.Errorf("migrate: %w", err))
		}
		st = postgresStorage(db)
	}
	if st.ping != nil {
		readiness["db"] = st.ping
	}

	// 2) sessions: redis (best-effort)
	var sessions account.SessionStore
	if cfg.RedisAddr != "" && deps.NewRedis != nil {
		c := deps.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := c.Ping(context.Background()); err != nil {
			logger.Logger.Warn().Err(err).Msg("redis unavailable; sessions kept in memory")
			_ = c.Close()
		} else {
			logger.Logger.Info().Msg("redis connected")
			cleanupFns = append(cleanupFns, func() { _ = c.Close() })
			sessions = redis.NewSessionStore(c)
			readiness["redis"] = c
		}
	}
	if sessions == nil {
		sessions = memory.NewSessionStore()
	}

	// 3) email dispatch
	mailer, err := newMailer(cfg, deps)
	if err != nil {
		return fail(err)
	}
	if c, ok := mailer.(interface{ Close() error }); ok {
		cleanupFns = append(cleanupFns, func() { _ = c.Close() })
	}

	// 4) audit
	bg, stopBG := context.WithCancel(context.Background())
	emitter := audit.NewEmitter(0)
	emitter.Subscribe("log", audit.NewLogSubscriber(logger.Component("audit")))
	emitter.Subscribe("metrics", audit.NewMetricsSubscriber(deps.Metrics))
	emitter.Subscribe("store", audit.NewStoreSubscriber(st.audit, 0))
	go emitter.Run(bg)
	// runs before the storage cleanups so buffered events still land
	cleanupFns = append(cleanupFns, func() {
		stopBG()
		emitter.Close()
		if n := emitter.Dropped(); n > 0 {
			logger.Logger.Warn().Int64("dropped", n).Msg("audit events dropped")
		}
	})

	// 5) security
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	signer := security.NewJWTSigner(cfg.JWTSecret, cfg.JWTIssuer)

	// 6) core
	tokens := account.NewTokenManager(st.tx, st.toks, nil, account.TokenConfig{
		VerificationTTL:  cfg.VerifyEmailTokenTTL,
		PasswordResetTTL: cfg.PasswordResetTokenTTL,
	})
	lockout := account.NewLockoutEngine(st.tx, st.users, emitter, nil, account.LockoutConfig{
		Threshold: cfg.LockoutThreshold,
		Duration:  cfg.LockoutDuration,
	})
	svc := account.NewService(account.Deps{
		Tx:       st.tx,
		Users:    st.users,
		Roles:    st.roles,
		Tokens:   tokens,
		Lockout:  lockout,
		Hasher:   hasher,
		Signer:   signer,
		Sessions: sessions,
		Mailer:   mailer,
		Audit:    emitter,
	}, account.Config{
		AutoEnable:           cfg.AutoEnable,
		HardDelete:           cfg.HardDelete,
		DefaultRole:          cfg.DefaultRole,
		AccessTTL:            cfg.AccessTokenTTL,
		SessionTTL:           cfg.SessionTTL,
		VerifyEmailBaseURL:   cfg.VerifyEmailBaseURL,
		PasswordResetBaseURL: cfg.PasswordResetBaseURL,
	})

	go account.NewSweeper(tokens, cfg.PurgeInterval, nil).Run(bg)

	// seed (dev only)
	if cfg.Env == "dev" {
		SeedUsers(context.Background(), st, hasher)
	}

	// 7) handlers + middleware
	v, err := dto.NewValidator()
	if err != nil {
		return fail(err)
	}
	accountH := handlers.NewAccountHandler(svc, v)
	healthH := handlers.NewHealthHandler(readiness)
	authMW := middleware.Auth(signer, sessions, response.WriteError)

	// 8) router
	mux, err := deps.NewRouter(router.Deps{
		Health:          healthH,
		Account:         accountH,
		AuthMW:          authMW,
		RateLimitPerMin: cfg.RateLimitPerMin,
		HSTS:            cfg.Env == "prod",
	})
	if err != nil {
		return fail(err)
	}

	// 9) server
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	cleanup := func() {
		runCleanup(cleanupFns)
	}
	return srv, cleanup, nil
}

func memoryStorage() storage {
	s := memory.NewStore()
	s.SeedRoles()
	return storage{
		tx:    s,
		users: s.Users(),
		roles: s.Roles(),
		toks:  s.Tokens(),
		audit: s.Audit(),
	}
}

func postgresStorage(db *sql.DB) storage {
	return storage{
		tx:    postgres.NewTxManager(db),
		users: postgres.NewUserRepo(db),
		roles: postgres.NewRoleRepo(db),
		toks:  postgres.NewTokenRepo(db),
		audit: postgres.NewAuditRepo(db),
		ping:  handlers.PingerFunc(db.PingContext),
	}
}

// newMailer prefers RabbitMQ. Outside dev/test a missing or unreachable broker
// is fatal; in dev/test emails are kept in memory.
func newMailer(cfg *config.Config, deps Deps) (account.EmailDispatcher, error) {
	if cfg.RabbitURL == "" || deps.NewDispatcher == nil {
		if !cfg.IsDev() {
			return nil, errors.New("bootstrap: RABBIT_URL is required outside dev")
		}
		logger.Logger.Warn().Msg("rabbitmq not configured; emails kept in memory")
		return memory.NewDispatcher(), nil
	}

	d, err := deps.NewDispatcher(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		if cfg.IsDev() {
			logger.Logger.Warn().Err(err).Msg("rabbitmq unavailable; emails kept in memory")
			return memory.NewDispatcher(), nil
		}
		return nil, err
	}
	return d, nil
}

/*
========================
 Default deps (prod)
========================
*/

func defaultDeps() Deps {
	return Deps{
		LoadConfig: config.Load,
		NewDB:      config.NewDB,
		Migrate:    postgres.Migrate,
		NewRedis:   redis.New,
		NewDispatcher: func(url, exchange string) (account.EmailDispatcher, error) {
			return rabbitmq.NewDispatcher(url, exchange)
		},
		NewRouter: router.New,
		Metrics:   prometheus.DefaultRegisterer,
	}
}

/*
========================
 helpers
========================
*/

func runCleanup(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
