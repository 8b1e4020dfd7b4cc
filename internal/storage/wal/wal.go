package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotPending — транзакция уже завершена.
var ErrNotPending = errors.New("WAL-транзакция не в статусе pending")

// WAL — файловый журнал передач.
// Сначала создаётся запись со статусом pending, затем выполняется
// передача, затем запись коммитится или откатывается.
type WAL struct {
	// dir — директория хранения WAL-файлов (KR_WAL_DIR)
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// New создаёт WAL. Создаёт директорию, если она не существует,
// и проверяет её доступность на запись.
func New(dir string, logger *slog.Logger) (*WAL, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию WAL %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".wal_write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o640); err != nil {
		return nil, fmt.Errorf("директория WAL %s недоступна для записи: %w", dir, err)
	}
	os.Remove(testFile)

	return &WAL{
		dir:    dir,
		logger: logger.With(slog.String("component", "wal")),
	}, nil
}

// StartTransaction создаёт новую запись со статусом pending.
func (w *WAL) StartTransaction(op OperationType, mediaID, tempName string) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry := &Entry{
		TransactionID: uuid.New().String(),
		Operation:     op,
		Status:        StatusPending,
		MediaID:       mediaID,
		TempName:      tempName,
		StartedAt:     time.Now().UTC(),
	}

	if err := w.writeEntry(entry); err != nil {
		return nil, fmt.Errorf("не удалось создать WAL-запись: %w", err)
	}

	w.logger.Debug("WAL транзакция начата",
		slog.String("tx_id", entry.TransactionID),
		slog.String("operation", string(entry.Operation)),
		slog.String("media_id", entry.MediaID),
	)

	return entry, nil
}

// SetStoragePath фиксирует имя опубликованного файла в pending транзакции.
// Вызывается сразу после публикации, до записи в каталог.
func (w *WAL) SetStoragePath(txID, storagePath string) error {
	return w.update(txID, func(e *Entry) {
		e.StoragePath = storagePath
	})
}

// Commit помечает транзакцию как успешно завершённую.
func (w *WAL) Commit(txID string) error {
	var started time.Time
	err := w.update(txID, func(e *Entry) {
		now := time.Now().UTC()
		e.Status = StatusCommitted
		e.CompletedAt = &now
		started = e.StartedAt
	})
	if err != nil {
		return err
	}

	w.logger.Debug("WAL транзакция завершена",
		slog.String("tx_id", txID),
		slog.Duration("duration", time.Since(started)),
	)
	return nil
}

// Rollback помечает транзакцию как отменённую.
func (w *WAL) Rollback(txID string) error {
	err := w.update(txID, func(e *Entry) {
		now := time.Now().UTC()
		e.Status = StatusRolledBack
		e.CompletedAt = &now
	})
	if err != nil {
		return err
	}

	w.logger.Debug("WAL транзакция отменена", slog.String("tx_id", txID))
	return nil
}

// RecoverPending возвращает pending записи и логирует каждую.
// Вызывается при старте для уборки после аварийного завершения.
func (w *WAL) RecoverPending() ([]*Entry, error) {
	pending, err := w.Pending()
	if err != nil {
		return nil, err
	}

	for _, entry := range pending {
		w.logger.Warn("Обнаружена незавершённая WAL-транзакция",
			slog.String("tx_id", entry.TransactionID),
			slog.String("operation", string(entry.Operation)),
			slog.String("media_id", entry.MediaID),
			slog.Time("started_at", entry.StartedAt),
		)
	}
	return pending, nil
}

// Pending возвращает все записи со статусом pending.
// Нечитаемые записи пропускаются с предупреждением.
func (w *WAL) Pending() ([]*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var pending []*Entry
	err := w.each(func(_ string, entry *Entry) {
		if entry.Status == StatusPending {
			pending = append(pending, entry)
		}
	})
	return pending, err
}

// GetTransaction читает WAL-запись по идентификатору транзакции.
func (w *WAL) GetTransaction(txID string) (*Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.readFile(filepath.Join(w.dir, walFileName(txID)))
}

// CleanCommitted удаляет завершённые записи и возвращает их число.
func (w *WAL) CleanCommitted() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cleaned := 0
	err := w.each(func(path string, entry *Entry) {
		if entry.Status == StatusPending {
			return
		}
		if err := os.Remove(path); err != nil {
			w.logger.Warn("Не удалось удалить завершённую WAL-запись",
				slog.String("tx_id", entry.TransactionID),
				slog.String("error", err.Error()),
			)
			return
		}
		cleaned++
	})
	if cleaned > 0 {
		w.logger.Info("Завершённые WAL-записи удалены", slog.Int("cleaned", cleaned))
	}
	return cleaned, err
}

// each вызывает fn для каждой читаемой записи журнала. Вызывается под w.mu.
func (w *WAL) each(fn func(path string, entry *Entry)) error {
	paths, err := filepath.Glob(filepath.Join(w.dir, "*"+walSuffix))
	if err != nil {
		return fmt.Errorf("сканирование директории WAL: %w", err)
	}
	for _, path := range paths {
		entry, err := w.readFile(path)
		if err != nil {
			w.logger.Warn("Повреждённая WAL-запись пропущена",
				slog.String("file", filepath.Base(path)),
				slog.String("error", err.Error()),
			)
			continue
		}
		fn(path, entry)
	}
	return nil
}

// Dir возвращает путь к директории WAL.
func (w *WAL) Dir() string {
	return w.dir
}

// update применяет fn к pending записи и сохраняет её.
func (w *WAL) update(txID string, fn func(*Entry)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, err := w.readFile(filepath.Join(w.dir, walFileName(txID)))
	if err != nil {
		return fmt.Errorf("не удалось прочитать WAL-запись %s: %w", txID, err)
	}
	if entry.Status != StatusPending {
		return fmt.Errorf("%w: %s имеет статус %s", ErrNotPending, txID, entry.Status)
	}

	fn(entry)

	if err := w.writeEntry(entry); err != nil {
		return fmt.Errorf("не удалось обновить WAL-запись %s: %w", txID, err)
	}
	return nil
}

// writeEntry сохраняет запись через временный файл в той же директории:
// читатель видит либо старую версию записи, либо новую.
func (w *WAL) writeEntry(entry *Entry) (err error) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация WAL-записи: %w", err)
	}

	f, err := os.CreateTemp(w.dir, ".wal-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}
	if err = f.Sync(); err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), filepath.Join(w.dir, walFileName(entry.TransactionID)))
}

func (w *WAL) readFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entry := new(Entry)
	if err := json.Unmarshal(data, entry); err != nil {
		return nil, fmt.Errorf("разбор %s: %w", filepath.Base(path), err)
	}
	return entry, nil
}
