package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/config"
	"github.com/bigkaa/krstream/internal/database"
	"github.com/bigkaa/krstream/internal/repository"
	"github.com/bigkaa/krstream/internal/storage/filestore"
	"github.com/bigkaa/krstream/internal/storage/wal"
)

// app — общие компоненты всех команд.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	catalog   *catalog.CachedStore
	store     *filestore.FileStore
	walEngine *wal.WAL
	// pool — пул PostgreSQL, nil для файлового каталога
	pool *pgxpool.Pool
}

// loadApp загружает конфигурацию и открывает хранилища.
// Каталог в PostgreSQL, если задан KR_DB_DSN, иначе файловый.
// Вызывающий обязан вызвать close.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("конфигурация: %w", err)
	}
	logger := config.SetupLogger(cfg)

	a := &app{cfg: cfg, logger: logger}

	var backend catalog.Store
	if cfg.DBDSN != "" {
		if err := database.Migrate(cfg.DBDSN, logger); err != nil {
			return nil, err
		}
		a.pool, err = database.Connect(ctx, cfg.DBDSN, logger)
		if err != nil {
			return nil, err
		}
		backend = repository.NewMediaRepository(a.pool, logger)
		logger.Info("Каталог: PostgreSQL")
	} else {
		fc, err := catalog.NewFileCatalog(cfg.CatalogDir, logger)
		if err != nil {
			return nil, err
		}
		backend = fc
		logger.Info("Каталог: файловый",
			slog.String("dir", cfg.CatalogDir),
			slog.Int("records", fc.Count()),
		)
	}
	a.catalog = catalog.NewCachedStore(backend, cfg.CacheSize, cfg.CacheTTL)

	a.store, err = filestore.New(cfg.DataDir)
	if err != nil {
		a.close()
		return nil, err
	}
	a.walEngine, err = wal.New(cfg.WALDir, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
