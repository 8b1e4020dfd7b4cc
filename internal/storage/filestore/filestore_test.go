package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	fs, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	if fs.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, fs.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestSaveFile проверяет сохранение и публикацию под основным именем.
func TestSaveFile(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}

	content := []byte("Hello, World! Тестовые данные для проверки.")
	candidates := CandidateNames("movie.mp4", "AgAD1", "video/mp4")

	result, err := fs.SaveFile(context.Background(), bytes.NewReader(content), TempName("AgAD1"), candidates, 1<<20)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}

	if result.Size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), result.Size)
	}
	if result.StoragePath != "movie.mp4" {
		t.Errorf("ожидалось имя movie.mp4, получено %s", result.StoragePath)
	}

	data, err := os.ReadFile(result.FullPath)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("содержимое файла не совпадает")
	}

	// Временный файл удалён
	entries, _ := fs.Scan()
	if len(entries) != 1 {
		t.Fatalf("ожидался 1 файл, получено %d", len(entries))
	}
	if entries[0].Temp {
		t.Error("опубликованный файл помечен как временный")
	}
}

// TestSaveFile_NoClobber проверяет, что существующий файл не перезаписывается.
func TestSaveFile_NoClobber(t *testing.T) {
	fs, _ := New(t.TempDir())
	existing := []byte("существующий файл")
	if err := os.WriteFile(fs.FullPath("movie.mp4"), existing, 0o640); err != nil {
		t.Fatal(err)
	}

	candidates := CandidateNames("movie.mp4", "AgAD2", "")
	result, err := fs.SaveFile(context.Background(), strings.NewReader("новый"), TempName("AgAD2"), candidates, 1<<20)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if result.StoragePath != "movie_AgAD2.mp4" {
		t.Errorf("ожидалось имя movie_AgAD2.mp4, получено %s", result.StoragePath)
	}

	data, _ := os.ReadFile(fs.FullPath("movie.mp4"))
	if !bytes.Equal(data, existing) {
		t.Error("существующий файл перезаписан")
	}
}

func TestSaveFile_TooLarge(t *testing.T) {
	fs, _ := New(t.TempDir())

	_, err := fs.SaveFile(context.Background(), bytes.NewReader(make([]byte, 101)), TempName("big"),
		CandidateNames("big.bin", "big", ""), 100)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("ожидалась ErrTooLarge, получено %v", err)
	}

	entries, _ := fs.Scan()
	if len(entries) != 0 {
		t.Errorf("после ошибки не должно остаться файлов, найдено %d", len(entries))
	}
}

// TestSaveFile_ExactLimit проверяет, что файл ровно в лимит принимается.
func TestSaveFile_ExactLimit(t *testing.T) {
	fs, _ := New(t.TempDir())

	result, err := fs.SaveFile(context.Background(), bytes.NewReader(make([]byte, 100)), TempName("x"),
		CandidateNames("x.bin", "x", ""), 100)
	if err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
	if result.Size != 100 {
		t.Errorf("ожидалось 100 байт, получено %d", result.Size)
	}
}

type failingReader struct{ after int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.after <= 0 {
		return 0, io.ErrUnexpectedEOF
	}
	n := min(len(p), r.after)
	r.after -= n
	return n, nil
}

// TestSaveFile_SourceFailure проверяет, что прерванная передача не оставляет файлов.
func TestSaveFile_SourceFailure(t *testing.T) {
	fs, _ := New(t.TempDir())

	_, err := fs.SaveFile(context.Background(), &failingReader{after: 10}, TempName("x"),
		CandidateNames("x.mp4", "x", ""), 1<<20)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}

	entries, _ := fs.Scan()
	if len(entries) != 0 {
		t.Errorf("после ошибки не должно остаться файлов, найдено %d", len(entries))
	}
}

func TestSaveFile_CancelledContext(t *testing.T) {
	fs, _ := New(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fs.SaveFile(ctx, strings.NewReader("data"), TempName("x"), CandidateNames("x.mp4", "x", ""), 1<<20)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v", err)
	}
}

// TestSaveFile_RecreatesDirectory проверяет создание удалённой директории данных.
func TestSaveFile_RecreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	fs, _ := New(dir)
	os.RemoveAll(dir)

	if _, err := fs.SaveFile(context.Background(), strings.NewReader("data"), TempName("x"),
		CandidateNames("x.mp4", "x", ""), 1<<20); err != nil {
		t.Fatalf("ошибка сохранения: %v", err)
	}
}

func TestOpen(t *testing.T) {
	fs, _ := New(t.TempDir())
	os.WriteFile(fs.FullPath("a.mp4"), []byte("0123456789"), 0o640)
	os.Mkdir(fs.FullPath("subdir"), 0o750)

	f, info, err := fs.Open("a.mp4")
	if err != nil {
		t.Fatalf("ошибка открытия: %v", err)
	}
	defer f.Close()
	if info.Size() != 10 {
		t.Errorf("ожидался размер 10, получено %d", info.Size())
	}

	for _, path := range []string{"missing.mp4", "subdir", "../a.mp4", "/etc/passwd"} {
		if _, _, err := fs.Open(path); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: ожидалась ErrNotFound, получено %v", path, err)
		}
	}
}

func TestDeleteFile(t *testing.T) {
	fs, _ := New(t.TempDir())
	os.WriteFile(fs.FullPath("a.mp4"), []byte("x"), 0o640)

	if err := fs.DeleteFile("a.mp4"); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if fs.FileExists("a.mp4") {
		t.Error("файл не удалён")
	}
	// Повторное удаление не является ошибкой
	if err := fs.DeleteFile("a.mp4"); err != nil {
		t.Errorf("повторное удаление: %v", err)
	}
}

func TestCandidateNames(t *testing.T) {
	tests := []struct {
		name        string
		original    string
		id          string
		contentType string
		wantFirst   string
		wantSecond  string
	}{
		{"обычное имя", "movie.mp4", "AgAD1", "video/mp4", "movie.mp4", "movie_AgAD1.mp4"},
		{"пробелы", "My Movie.MKV", "id", "", "My_Movie.mkv", "My_Movie_id.mkv"},
		{"кириллица", "Фильм (2024).mp4", "id", "", "Фильм_2024.mp4", "Фильм_2024_id.mp4"},
		{"обход пути", "../../etc/passwd", "id", "", "passwd.bin", "passwd_id.bin"},
		{"без имени", "", "AgAD9", "", "AgAD9.bin", ""},
		{"без имени, неизвестный тип", "", "AgAD9", "application/x-kr-unknown", "AgAD9.bin", ""},
		{"скрытый файл", ".hidden", "id", "", "hidden.bin", "hidden_id.bin"},
		{"расширение part", "clip.part", "id", "", "clip.bin", "clip_id.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CandidateNames(tt.original, tt.id, tt.contentType)
			if got[0] != tt.wantFirst {
				t.Errorf("первый кандидат: ожидалось %q, получено %q", tt.wantFirst, got[0])
			}
			if tt.wantSecond != "" && got[1] != tt.wantSecond {
				t.Errorf("второй кандидат: ожидалось %q, получено %q", tt.wantSecond, got[1])
			}
			for _, name := range got {
				if IsTempName(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
					t.Errorf("небезопасный кандидат %q", name)
				}
			}
		})
	}
}

func TestIsTempName(t *testing.T) {
	if !IsTempName(TempName("AgAD1")) {
		t.Error("TempName должен распознаваться как временный")
	}
	if IsTempName("movie.part") {
		t.Error("имя без точки в начале не является временным")
	}
}

func TestDiskUsage(t *testing.T) {
	total, available, err := DiskUsage(t.TempDir())
	if err != nil {
		t.Fatalf("DiskUsage: %v", err)
	}
	if total <= 0 || available < 0 || available > total {
		t.Errorf("неверные значения: total=%d available=%d", total, available)
	}

	if _, _, err := DiskUsage(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ожидалась ошибка для несуществующей директории")
	}
}
