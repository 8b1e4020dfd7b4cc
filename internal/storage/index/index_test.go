package index

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/storage/attr"
)

// testLogger возвращает логгер для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func createTestRecord(id, name string) *model.MediaRecord {
	return &model.MediaRecord{
		ID:              id,
		DisplayName:     name,
		SizeBytes:       1024,
		ThumbnailRef:    "thumb",
		StorageLocation: fmt.Sprintf("%s.mp4", id),
	}
}

// TestNew проверяет создание пустого индекса.
func TestNew(t *testing.T) {
	idx := New(testLogger())

	if idx.Count() != 0 {
		t.Errorf("ожидалось 0 записей, получено %d", idx.Count())
	}
	if idx.IsReady() {
		t.Error("новый индекс не должен быть ready")
	}
}

func TestPutIfAbsent(t *testing.T) {
	idx := New(testLogger())

	existing, inserted := idx.PutIfAbsent(createTestRecord("id-1", "A"))
	if !inserted || existing != nil {
		t.Fatal("первая вставка должна пройти")
	}

	other := createTestRecord("id-1", "B")
	existing, inserted = idx.PutIfAbsent(other)
	if inserted {
		t.Fatal("повторная вставка того же id не должна пройти")
	}
	if existing == nil || existing.DisplayName != "A" {
		t.Errorf("ожидалась существующая запись A, получено %+v", existing)
	}
	if idx.Count() != 1 {
		t.Errorf("ожидалась 1 запись, получено %d", idx.Count())
	}
}

// TestGet_ReturnsCopy проверяет, что изменение возвращённой записи не влияет на индекс.
func TestGet_ReturnsCopy(t *testing.T) {
	idx := New(testLogger())
	rec := createTestRecord("id-1", "A")
	idx.PutIfAbsent(rec)

	// Изменение исходного объекта после вставки
	rec.DisplayName = "mutated"

	got := idx.Get("id-1")
	got.SizeBytes = 1

	again := idx.Get("id-1")
	if again.DisplayName != "A" || again.SizeBytes != 1024 {
		t.Errorf("индекс изменён извне: %+v", again)
	}

	if idx.Get("missing") != nil {
		t.Error("для отсутствующего id ожидался nil")
	}
}

func TestList_OrderedByDisplayName(t *testing.T) {
	idx := New(testLogger())
	idx.PutIfAbsent(createTestRecord("id-b", "B"))
	idx.PutIfAbsent(createTestRecord("id-a", "A"))
	idx.PutIfAbsent(createTestRecord("id-c", "C"))

	list := idx.List()
	if len(list) != 3 {
		t.Fatalf("ожидалось 3 записи, получено %d", len(list))
	}
	want := []string{"A", "B", "C"}
	for i, rec := range list {
		if rec.DisplayName != want[i] {
			t.Errorf("позиция %d: хотели %s, получили %s", i, want[i], rec.DisplayName)
		}
	}
}

func TestList_TieBreakByID(t *testing.T) {
	idx := New(testLogger())
	idx.PutIfAbsent(createTestRecord("id-2", "same"))
	idx.PutIfAbsent(createTestRecord("id-1", "same"))
	// Побайтовый порядок: заглавные раньше строчных
	idx.PutIfAbsent(createTestRecord("id-3", "Zeta"))

	list := idx.List()
	got := []string{list[0].ID, list[1].ID, list[2].ID}
	want := []string{"id-3", "id-1", "id-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("позиция %d: хотели %s, получили %s", i, want[i], got[i])
		}
	}
}

func TestBuildFromDir(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"a1", "b2"} {
		if err := attr.Publish(dir, createTestRecord(id, id)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	os.WriteFile(dir+"/broken"+attr.AttrSuffix, []byte("{"), 0o640)

	idx := New(testLogger())
	if err := idx.BuildFromDir(dir); err != nil {
		t.Fatalf("BuildFromDir: %v", err)
	}
	if !idx.IsReady() {
		t.Error("индекс должен быть ready")
	}
	if idx.Count() != 2 {
		t.Errorf("ожидалось 2 записи, получено %d", idx.Count())
	}
}

// TestConcurrentAccess проверяет отсутствие гонок при параллельных
// чтениях и вставках (запускать с -race).
func TestConcurrentAccess(t *testing.T) {
	idx := New(testLogger())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			idx.PutIfAbsent(createTestRecord(fmt.Sprintf("id-%d", n%5), fmt.Sprintf("name-%d", n)))
		}(i)
		go func(n int) {
			defer wg.Done()
			for _, rec := range idx.List() {
				if rec.ID == "" || rec.StorageLocation == "" {
					t.Errorf("получена неполная запись: %+v", rec)
				}
			}
			_ = idx.Get(fmt.Sprintf("id-%d", n%5))
		}(i)
	}
	wg.Wait()

	if idx.Count() != 5 {
		t.Errorf("ожидалось 5 уникальных записей, получено %d", idx.Count())
	}
}
