// Пакет attr — чтение и запись файлов записей каталога (attr.json).
// Каждая запись каталога хранится отдельным *.attr.json в директории
// каталога и является единственным источником истины для файлового каталога.
// Публикация выполняется атомарно и без перезаписи: temp → fsync → link.
package attr

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/krstream/internal/domain/model"
)

// AttrSuffix — суффикс файла записи.
const AttrSuffix = ".attr.json"

// maxAttrFileSize — максимальный допустимый размер attr.json (4 КБ).
const maxAttrFileSize = 4096

// ErrExists — запись с таким id уже опубликована.
var ErrExists = errors.New("attr.json уже существует")

// FileName возвращает имя attr.json для id записи.
// Id из безопасного алфавита используется как есть, остальные кодируются в hex.
func FileName(id string) string {
	if isSafeID(id) {
		return id + AttrSuffix
	}
	return "x-" + hex.EncodeToString([]byte(id)) + AttrSuffix
}

// IsAttrFile проверяет, является ли путь файлом записи.
func IsAttrFile(path string) bool {
	return strings.HasSuffix(path, AttrSuffix)
}

// Publish атомарно публикует запись в dir.
// Если файл записи уже существует, возвращает ErrExists и не изменяет его.
func Publish(dir string, rec *model.MediaRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации записи: %w", err)
	}

	// Проверка размера для гарантии атомарности
	if len(data) > maxAttrFileSize {
		return fmt.Errorf("размер attr.json (%d байт) превышает максимум (%d байт)", len(data), maxAttrFileSize)
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName(rec.ID))
	tmpPath := filepath.Join(dir, "."+uuid.New().String()+".tmp")

	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("ошибка записи: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	// link не перезаписывает существующий файл, в отличие от rename
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("ошибка публикации %s: %w", path, err)
	}

	return nil
}

// Read читает и валидирует запись из attr.json.
// Неизвестные поля и невалидные записи отклоняются.
func Read(path string) (*model.MediaRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения attr.json %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var rec model.MediaRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("ошибка десериализации attr.json %s: %w", path, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("attr.json %s: %w", path, err)
	}

	return &rec, nil
}

// ReadByID читает запись по id из dir.
func ReadByID(dir, id string) (*model.MediaRecord, error) {
	return Read(filepath.Join(dir, FileName(id)))
}

// ScanDir сканирует директорию и возвращает все валидные записи.
// Не рекурсивный. Невалидные файлы пропускаются, их ошибки возвращаются
// во втором значении для логирования.
func ScanDir(dir string) ([]*model.MediaRecord, []error, error) {
	pattern := filepath.Join(dir, "*"+AttrSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка сканирования директории %s: %w", dir, err)
	}

	var (
		result  []*model.MediaRecord
		skipped []error
	)
	for _, path := range matches {
		rec, err := Read(path)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if filepath.Base(path) != FileName(rec.ID) {
			skipped = append(skipped, fmt.Errorf("attr.json %s: id %q не совпадает с именем файла", path, rec.ID))
			continue
		}
		result = append(result, rec)
	}

	return result, skipped, nil
}

// isSafeID проверяет, что id состоит только из символов, безопасных для имени файла.
func isSafeID(id string) bool {
	if id == "" || len(id) > 128 || strings.HasPrefix(id, ".") || strings.HasPrefix(id, "x-") {
		return false
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_') {
			return false
		}
	}
	return true
}
