// Пакет wal — файловый журнал незавершённых загрузок.
// Каждая передача медиафайла открывает транзакцию ({tx_id}.wal.json
// в KR_WAL_DIR) до записи первого байта и закрывает её после
// публикации записи в каталоге. Pending транзакции после сбоя
// указывают, какие временные и опубликованные файлы нужно убрать.
package wal

import (
	"time"
)

// OperationType — тип операции, записываемой в WAL.
type OperationType string

const (
	// OpIngest — приём медиафайла от оператора
	OpIngest OperationType = "ingest"
)

// TransactionStatus — статус транзакции WAL.
type TransactionStatus string

const (
	// StatusPending — передача в процессе
	StatusPending TransactionStatus = "pending"
	// StatusCommitted — запись опубликована в каталоге
	StatusCommitted TransactionStatus = "committed"
	// StatusRolledBack — передача отменена, файлы удалены
	StatusRolledBack TransactionStatus = "rolled_back"
)

// Entry — запись WAL. Хранится как JSON-файл {tx_id}.wal.json.
type Entry struct {
	// TransactionID — уникальный идентификатор транзакции (UUID v4)
	TransactionID string `json:"transaction_id"`

	Operation OperationType     `json:"operation"`
	Status    TransactionStatus `json:"status"`

	// MediaID — id записи каталога, ради которой идёт передача
	MediaID string `json:"media_id"`

	// TempName — имя временного файла в директории данных
	TempName string `json:"temp_name"`

	// StoragePath — имя опубликованного файла; пусто до публикации
	StoragePath string `json:"storage_path,omitempty"`

	// StartedAt — время начала транзакции (UTC)
	StartedAt time.Time `json:"started_at"`

	// CompletedAt — время завершения транзакции (UTC).
	// nil для pending транзакций.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

const walSuffix = ".wal.json"

func walFileName(txID string) string {
	return txID + walSuffix
}
