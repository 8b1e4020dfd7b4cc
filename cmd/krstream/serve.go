package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/krstream/internal/api/handlers"
	"github.com/bigkaa/krstream/internal/bot"
	"github.com/bigkaa/krstream/internal/config"
	"github.com/bigkaa/krstream/internal/server"
	"github.com/bigkaa/krstream/internal/service"
)

// defaultTelegramURL — Bot API для проверки доступности.
const defaultTelegramURL = "https://api.telegram.org"

// serveCmd запускает HTTP-сервер, бота и очистку.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запуск веб-каталога, Telegram-бота и фоновой очистки",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	// Пул БД закрывается последним, после остановки всех задач
	defer a.close()

	cfg, logger := a.cfg, a.logger
	logger.Info("KR Stream запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Bool("bot", !cfg.BotDisabled),
	)

	sweepSvc := service.NewSweepService(a.catalog, a.store, a.walEngine, cfg.SweepInterval, cfg.SweepGrace, logger)

	// Незавершённые передачи прошлого запуска разбираются до приёма новых
	if _, err := sweepSvc.Recover(ctx); err != nil {
		return fmt.Errorf("восстановление WAL: %w", err)
	}

	var b *bot.Bot
	if !cfg.BotDisabled {
		api, err := bot.NewTelegramAPI(cfg)
		if err != nil {
			return fmt.Errorf("подключение к Telegram Bot API: %w", err)
		}
		publisher := bot.NewChannelPublisher(api, cfg.BackupChannelID, cfg.LogChannelID, cfg.NotifyInterval, logger)
		ingestSvc := service.NewIngestService(cfg, a.catalog, a.store, a.walEngine, publisher, publisher, logger)
		b = bot.New(api, ingestSvc, cfg, nil, logger)
	} else {
		logger.Warn("Бот отключён (KR_BOT_DISABLED), загрузка недоступна")
	}

	dephealthSvc := startDephealth(ctx, a)
	if dephealthSvc != nil {
		defer dephealthSvc.Stop()
	}

	streamSvc := service.NewStreamService(a.catalog, a.store, logger)
	var deps handlers.DependencyHealth
	if dephealthSvc != nil {
		deps = dephealthSvc
	}
	srv := server.New(cfg, logger, server.Handlers{
		Catalog: handlers.NewCatalogHandler(a.catalog, logger),
		Stream:  handlers.NewStreamHandler(streamSvc),
		Health:  handlers.NewHealthHandler(cfg.DataDir, cfg.WALDir, a.catalog, deps),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return sweepSvc.Run(gctx) })

	if b != nil {
		g.Go(func() error { return b.Run(gctx) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("KR Stream остановлен с ошибкой", slog.String("error", err.Error()))
		return err
	}

	logger.Info("KR Stream остановлен")
	return nil
}

// startDephealth запускает мониторинг зависимостей. Ошибка не
// останавливает сервис: он работает без мониторинга.
func startDephealth(ctx context.Context, a *app) *service.DephealthService {
	cfg, logger := a.cfg, a.logger

	targets := service.DephealthTargets{}
	if !cfg.BotDisabled {
		targets.TelegramURL = telegramHealthURL(cfg.TelegramAPIEndpoint)
	}
	if a.pool != nil {
		targets.DB = stdlib.OpenDBFromPool(a.pool)
		targets.PostgresURL = cfg.DBDSN
	}

	ds, err := service.NewDephealthService(cfg.ServiceID, cfg.DephealthGroup, targets, cfg.DephealthCheckInterval, logger)
	if err != nil {
		if !errors.Is(err, service.ErrNoDependencies) {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if err := ds.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	return ds
}

// telegramHealthURL возвращает базовый URL Bot API. endpoint имеет
// формат tgbotapi: "http://host:8081/bot%s/%s".
func telegramHealthURL(endpoint string) string {
	if endpoint == "" {
		return defaultTelegramURL
	}
	base, _, _ := strings.Cut(endpoint, "%s")
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return defaultTelegramURL
	}
	return u.Scheme + "://" + u.Host
}
