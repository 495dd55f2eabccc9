package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/clipsearch/internal/config"
	dbRedis "github.com/kailas-cloud/clipsearch/internal/db/redis"
	"github.com/kailas-cloud/clipsearch/internal/repository/qdrant"
	"github.com/kailas-cloud/clipsearch/internal/repository/record"
)

type backend struct {
	records   Records
	kv        kvStore // nil when the backend has no key-value side
	waitReady func(ctx context.Context, timeout time.Duration) error
	close     func()
}

// redisRecords joins the record repository with its store's ping.
type redisRecords struct {
	*record.Repo
	store *dbRedis.Store
}

func (r redisRecords) Ping(ctx context.Context) error {
	return r.store.Ping(ctx) //nolint:wrapcheck // store already wraps with db.Error
}

func openBackend(cfg config.Config, logger *zap.Logger) (*backend, error) {
	vec := cfg.VectorConfig()

	switch cfg.Database.Driver {
	case config.DriverValkey, config.DriverRedis:
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
			Flavor:   dbRedis.Flavor(cfg.Database.Driver),
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		logger.Info("Using FT vector store",
			zap.String("flavor", string(store.Flavor())),
			zap.Strings("addrs", cfg.Database.Addrs),
		)
		return &backend{
			records:   redisRecords{Repo: record.New(store, vec), store: store},
			kv:        store,
			waitReady: store.WaitForReady,
			close:     store.Close,
		}, nil

	case config.DriverQdrant:
		repo, err := qdrant.New(cfg.Database.Addrs[0], vec)
		if err != nil {
			return nil, fmt.Errorf("create qdrant store: %w", err)
		}
		logger.Info("Using Qdrant vector store", zap.String("addr", cfg.Database.Addrs[0]))
		return &backend{
			records:   repo,
			waitReady: repo.WaitForReady,
			close: func() {
				if err := repo.Close(); err != nil {
					logger.Warn("Failed to close qdrant connection", zap.Error(err))
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
