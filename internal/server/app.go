// Package server wires the configured stores, the auth service and the HTTP
// boundary together and runs them until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/httpapi"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/dmitrijs2005/authcore/internal/server/password"
	"github.com/dmitrijs2005/authcore/internal/server/registry"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const connectTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	metrics *metrics.Metrics
	service *services.AuthService
	sweeper *registry.Sweeper
	closers []func(context.Context) error
}

// NewApp validates c and connects every backend it names. On error, whatever
// was already opened is closed again.
func NewApp(c *config.Config) (app *App, err error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(c.LogFormat, os.Stdout)
	if err != nil {
		return nil, err
	}

	app = &App{config: c, logger: logger, metrics: metrics.New()}
	defer func() {
		if err != nil {
			app.close(context.Background())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	var db *sql.DB
	if c.UserStore == config.BackendPostgres || c.RegistryBackend == config.BackendPostgres {
		if db, err = app.openPostgres(ctx); err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
	}

	var userRepo users.Repository
	switch c.UserStore {
	case config.BackendPostgres:
		userRepo = repomanager.NewPostgresRepositoryManager().Users(db)
	default:
		userRepo = users.NewMemoryRepository()
	}

	reg, err := app.openRegistry(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("registry init error: %w", err)
	}

	signer, err := auth.NewSigner(auth.NewKeyring(c.SecretKeyID, c.SecretKey, c.RetiredSecretKeys), nil)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(c.PasswordAlgorithm, c.BcryptCost, password.DefaultArgon2Params)
	if err != nil {
		return nil, err
	}

	app.service, err = services.NewAuthService(userRepo, reg, signer, hasher, c, logger, app.metrics)
	if err != nil {
		return nil, err
	}

	app.sweeper = registry.NewSweeper(reg, c.SweepInterval, logger, func(n int64) {
		app.metrics.RegistrySwept.Add(float64(n))
	})

	return app, nil
}

func (app *App) openPostgres(ctx context.Context) (*sql.DB, error) {
	db, err := repomanager.OpenPostgres(ctx, app.config.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func(context.Context) error { return db.Close() })

	if err := repomanager.NewPostgresRepositoryManager().RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

func (app *App) openRegistry(ctx context.Context, db *sql.DB) (refreshtokens.Registry, error) {
	switch app.config.RegistryBackend {
	case config.BackendPostgres:
		return repomanager.NewPostgresRepositoryManager().RefreshTokens(db), nil

	case config.BackendRedis:
		opt, err := redis.ParseURL(app.config.RedisURL)
		if err != nil {
			return nil, err
		}
		rdb := redis.NewClient(opt)
		app.closers = append(app.closers, func(context.Context) error { return rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return refreshtokens.NewRedisRegistry(rdb), nil

	case config.BackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(app.config.MongoURI))
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Disconnect)
		if err := client.Ping(ctx, nil); err != nil {
			return nil, err
		}
		r := refreshtokens.NewMongoRegistry(client.Database(app.config.MongoDatabase))
		if err := r.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return r, nil

	default:
		return refreshtokens.NewMemoryRegistry(), nil
	}
}

func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil {
			app.logger.Error(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	gin.SetMode(app.config.GinMode)
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.service, app.metrics, app.config.Origins())

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a termination signal arrives, ctx is cancelled or the HTTP
// server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"user_store", app.config.UserStore,
		"registry", app.config.RegistryBackend,
		"key_id", app.config.SecretKeyID,
	)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	app.close(closeCtx)

	app.logger.Info(closeCtx, "App stopped")
}
