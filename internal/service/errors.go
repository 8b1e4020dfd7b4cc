// Пакет service — бизнес-логика KR Stream: приём медиафайлов,
// отдача с поддержкой Range, очистка осиротевших файлов и мониторинг
// зависимостей.
package service

import (
	"errors"
	"fmt"
)

// Виды ошибок приёма. Проверяются через errors.Is.
var (
	// ErrUnauthorized — загрузку прислал не оператор.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidPayload — в сообщении нет пригодного вложения.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrTransferFailure — ошибка передачи или записи, безопасно повторить.
	ErrTransferFailure = errors.New("transfer failure")
)

// Тексты для оператора.
const (
	msgUnauthorized    = "🚫 Only admin can upload files."
	msgInvalidPayload  = "❌ Send a valid video or document"
	msgTransferFailure = "❌ Upload failed, please try again."
)

// IngestError — ошибка приёма медиафайла.
// Message — текст для оператора, в нём никогда нет низкоуровневых
// деталей. Err — причина для логов.
type IngestError struct {
	Kind    error
	Message string
	Err     error
}

func (e *IngestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

// Is сопоставляет ошибку с её видом.
func (e *IngestError) Is(target error) bool {
	return target == e.Kind
}

func (e *IngestError) Unwrap() error {
	return e.Err
}

// OperatorMessage возвращает текст ошибки для оператора.
// Для ошибок, не являющихся IngestError, возвращается общий текст.
func OperatorMessage(err error) string {
	var ie *IngestError
	if errors.As(err, &ie) && ie.Message != "" {
		return ie.Message
	}
	return msgTransferFailure
}

func unauthorized() *IngestError {
	return &IngestError{Kind: ErrUnauthorized, Message: msgUnauthorized}
}

func invalidPayload(message string, err error) *IngestError {
	if message == "" {
		message = msgInvalidPayload
	}
	return &IngestError{Kind: ErrInvalidPayload, Message: message, Err: err}
}

func transferFailure(message string, err error) *IngestError {
	if message == "" {
		message = msgTransferFailure
	}
	return &IngestError{Kind: ErrTransferFailure, Message: message, Err: err}
}
