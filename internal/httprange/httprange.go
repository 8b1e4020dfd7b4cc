// Пакет httprange — разбор заголовка Range для отдачи одного
// диапазона байт.
//
// Поддерживается только единица bytes и один диапазон. Всё, что не
// удалось разобрать (другая единица, несколько диапазонов, синтаксическая
// ошибка, end < start), трактуется как отсутствие заголовка: клиент
// получает файл целиком.
package httprange

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind — исход разбора заголовка Range.
type Kind int

const (
	// Full — заголовка нет или он некорректен: отдаётся весь файл (200).
	Full Kind = iota
	// Partial — корректный диапазон внутри файла (206).
	Partial
	// Unsatisfiable — диапазон начинается за концом файла (416).
	Unsatisfiable
)

func (k Kind) String() string {
	switch k {
	case Full:
		return "full"
	case Partial:
		return "partial"
	case Unsatisfiable:
		return "unsatisfiable"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result — результат разбора. Start и End включительные и
// заполнены только для Partial.
type Result struct {
	Kind  Kind
	Start int64
	End   int64
}

// Length возвращает количество байт в диапазоне.
func (r Result) Length() int64 {
	if r.Kind != Partial {
		return 0
	}
	return r.End - r.Start + 1
}

// ContentRange возвращает значение заголовка Content-Range для
// файла размером size: "bytes s-e/L" для Partial, "bytes */L" для
// Unsatisfiable и пустую строку для Full.
func (r Result) ContentRange(size int64) string {
	switch r.Kind {
	case Partial:
		return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
	case Unsatisfiable:
		return fmt.Sprintf("bytes */%d", size)
	default:
		return ""
	}
}

// Parse разбирает заголовок Range для файла размером size.
func Parse(header string, size int64) Result {
	full := Result{Kind: Full}

	header = strings.TrimSpace(header)
	if header == "" {
		return full
	}

	unit, spec, ok := strings.Cut(header, "=")
	if !ok || !strings.EqualFold(strings.TrimSpace(unit), "bytes") {
		return full
	}
	if strings.Contains(spec, ",") {
		return full
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return full
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	// Суффиксный диапазон: последние N байт
	if startStr == "" {
		n, ok := parseOffset(endStr)
		if !ok {
			return full
		}
		if n == 0 || size == 0 {
			return Result{Kind: Unsatisfiable}
		}
		if n > size {
			n = size
		}
		return Result{Kind: Partial, Start: size - n, End: size - 1}
	}

	start, ok := parseOffset(startStr)
	if !ok {
		return full
	}

	end := size - 1
	if endStr != "" {
		end, ok = parseOffset(endStr)
		if !ok {
			return full
		}
	}

	if start >= size {
		return Result{Kind: Unsatisfiable}
	}
	if end < start {
		return full
	}
	if end > size-1 {
		end = size - 1
	}

	return Result{Kind: Partial, Start: start, End: end}
}

// parseOffset разбирает неотрицательное десятичное число без знака.
func parseOffset(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
