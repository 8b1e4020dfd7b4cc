package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/database"
	"github.com/bigkaa/krstream/internal/domain/model"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("krstream_test"),
		postgres.WithUsername("krstream"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Не удалось получить DSN контейнера: %v", err)
	}

	logger := testLogger()
	if err := database.Migrate(dsn, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, dsn, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRecord(id, name string) *model.MediaRecord {
	return &model.MediaRecord{
		ID:              id,
		DisplayName:     name,
		SizeBytes:       10485760,
		ThumbnailRef:    "https://example.com/poster.jpg",
		StorageLocation: name,
		ContentType:     "video/mp4",
	}
}

func TestMediaRepository_PutGet(t *testing.T) {
	repo := NewMediaRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	rec := testRecord("X1", "movie.mp4")
	if err := repo.Put(ctx, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := repo.Get(ctx, "X1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || !got.SameContent(rec) {
		t.Fatalf("получена другая запись: %+v", got)
	}

	missing, err := repo.Get(ctx, "missing")
	if err != nil || missing != nil {
		t.Errorf("для отсутствующего id ожидалось (nil, nil), получено (%v, %v)", missing, err)
	}

	if err := repo.Ready(ctx); err != nil {
		t.Errorf("Ready: %v", err)
	}
}

func TestMediaRepository_Duplicate(t *testing.T) {
	repo := NewMediaRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	if err := repo.Put(ctx, testRecord("X1", "movie.mp4")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := repo.Put(ctx, testRecord("X1", "movie.mp4")); err != nil {
		t.Errorf("повторная вставка той же записи: %v", err)
	}
	if err := repo.Put(ctx, testRecord("X1", "other.mp4")); !errors.Is(err, catalog.ErrDuplicateID) {
		t.Errorf("ожидалась ErrDuplicateID, получено %v", err)
	}
}

func TestMediaRepository_ListOrder(t *testing.T) {
	repo := NewMediaRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	for _, name := range []string{"b", "B", "A", "C"} {
		if err := repo.Put(ctx, testRecord("id-"+name, name)); err != nil {
			t.Fatalf("Put %s: %v", name, err)
		}
	}

	list, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	// Побайтовый порядок: заглавные раньше строчных
	want := []string{"A", "B", "C", "b"}
	if len(list) != len(want) {
		t.Fatalf("ожидалось %d записей, получено %d", len(want), len(list))
	}
	for i := range want {
		if list[i].DisplayName != want[i] {
			t.Errorf("позиция %d: хотели %s, получили %s", i, want[i], list[i].DisplayName)
		}
	}
}

func TestMediaRepository_ConcurrentPut(t *testing.T) {
	repo := NewMediaRepository(setupTestDB(t), testLogger())
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		dups int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := repo.Put(ctx, testRecord("X1", fmt.Sprintf("movie-%d.mp4", n)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				oks++
			case errors.Is(err, catalog.ErrDuplicateID):
				dups++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if oks != 1 || dups != 7 {
		t.Errorf("ожидался 1 успех и 7 дубликатов, получено %d/%d", oks, dups)
	}
}
