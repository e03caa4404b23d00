// Утилита tagctl — администрирование Tag Allocator напрямую через PostgreSQL:
// миграции, конфигурации тегов, поиск, перегенерация, удаление и импорт тегов.
// Параметры подключения берутся из тех же переменных окружения TA_DB_*.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/bigkaa/goarttag/internal/cache"
	"github.com/bigkaa/goarttag/internal/config"
	"github.com/bigkaa/goarttag/internal/database"
	"github.com/bigkaa/goarttag/internal/events"
	"github.com/bigkaa/goarttag/internal/repository"
	"github.com/bigkaa/goarttag/internal/service"
)

var (
	// format — формат вывода: table, json, yaml
	format string
)

// app — зависимости команд, создаются при первом обращении к БД.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	configs *service.ConfigService
	tags    *service.TagService
	bulk    *service.BulkOperator
	txs     *repository.TxRunner
}

var current *app

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tagctl",
		Short: "Администрирование Tag Allocator",
		Long: `tagctl работает с базой Tag Allocator напрямую, без HTTP API.

Примеры:
  tagctl migrate
  tagctl configs create --entity-type equipment --prefix EQ
  tagctl tags list --owner-type equipment --format json
  tagctl tags regenerate 12 15 18`,
		SilenceUsage: true,
		PersistentPostRun: func(*cobra.Command, []string) {
			if current != nil && current.pool != nil {
				current.pool.Close()
			}
		},
	}

	root.PersistentFlags().StringVarP(&format, "format", "f", formatTable, "Формат вывода: table|json|yaml")

	root.AddCommand(newMigrateCmd(), newConfigsCmd(), newTagsCmd())
	return root
}

// loadApp читает конфигурацию и создаёт логгер (без подключения к БД).
func loadApp() (*app, error) {
	if current != nil {
		return current, nil
	}
	if err := validateFormat(format); err != nil {
		return nil, err
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Логи — в stderr, stdout занят выводом команд
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	current = &app{cfg: cfg, logger: logger}
	return current, nil
}

// connect подключается к PostgreSQL и собирает сервисный слой.
// Кэш конфигураций отключён: утилита видит актуальное состояние БД.
func connect(ctx context.Context) (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if a.pool != nil {
		return a, nil
	}

	a.pool, err = database.Connect(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}

	configRepo := repository.NewConfigRepository(a.pool)
	tagRepo := repository.NewTagRepository(a.pool)

	notifier := events.NewNotifier(a.logger)
	notifier.SubscribeAll(events.LogSink(a.logger))

	a.configs = service.NewConfigService(configRepo, cache.Disabled{}, a.logger)
	allocator := service.NewAllocator(
		a.configs,
		repository.NewCounterRepository(a.pool),
		tagRepo,
		notifier,
		service.AllocatorOptions{Debug: true},
		a.logger,
	)
	a.tags = service.NewTagService(tagRepo, a.logger)
	a.bulk = service.NewBulkOperator(tagRepo, allocator, nil, notifier, a.logger)
	a.txs = repository.NewTxRunner(a.pool)
	return a, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
