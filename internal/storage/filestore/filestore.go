// Пакет filestore — операции с медиафайлами на диске.
// Обеспечивает потоковую запись во временный файл с публикацией
// без перезаписи (hard link), открытие на чтение и обход директории
// для очистки осиротевших файлов.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// TempSuffix — суффикс временного файла незавершённой передачи.
const TempSuffix = ".part"

// Ошибки файлового хранилища.
var (
	// ErrNotFound — файл отсутствует или не является обычным файлом.
	ErrNotFound = errors.New("файл не найден")
	// ErrTooLarge — передано больше байт, чем допускает лимит.
	ErrTooLarge = errors.New("файл превышает допустимый размер")
	// ErrNoFreeName — все кандидаты имени уже заняты.
	ErrNoFreeName = errors.New("нет свободного имени для публикации")
)

// FileStore — управление медиафайлами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (KR_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения файла на диск.
type SaveResult struct {
	// StoragePath — имя опубликованного файла относительно dataDir
	StoragePath string
	// FullPath — путь файла на диске
	FullPath string
	// Size — количество фактически записанных байт
	Size int64
}

// Entry — файл в директории данных.
type Entry struct {
	Name    string
	ModTime time.Time
	Size    int64
	// Temp — временный файл незавершённой передачи
	Temp bool
}

// New создаёт новый FileStore. Создаёт директорию, если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// TempName возвращает уникальное имя временного файла для передачи с данным id.
func TempName(id string) string {
	return "." + sanitize(id) + "." + uuid.New().String() + TempSuffix
}

// SaveFile записывает данные из reader во временный файл tempName и
// публикует его под первым свободным именем из candidates.
//
// Паттерн: temp файл → запись → fsync → link (без перезаписи) → удаление temp.
// До успешного link опубликованного файла не существует, при любой ошибке
// temp файл удаляется. Размер считается по фактически записанным байтам.
func (fs *FileStore) SaveFile(ctx context.Context, reader io.Reader, tempName string, candidates []string, maxSize int64) (*SaveResult, error) {
	if len(candidates) == 0 {
		return nil, ErrNoFreeName
	}

	// Директория могла быть удалена извне после старта
	if err := os.MkdirAll(fs.dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", fs.dataDir, err)
	}

	tmpPath := filepath.Join(fs.dataDir, tempName)
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer os.Remove(tmpPath)

	size, err := io.Copy(f, io.LimitReader(&ctxReader{ctx: ctx, r: reader}, maxSize+1))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}
	if size > maxSize {
		f.Close()
		return nil, fmt.Errorf("%w: более %d байт", ErrTooLarge, maxSize)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	for _, name := range candidates {
		fullPath := filepath.Join(fs.dataDir, name)
		err := os.Link(tmpPath, fullPath)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка публикации файла %s: %w", name, err)
		}

		syncDir(fs.dataDir)
		return &SaveResult{
			StoragePath: name,
			FullPath:    fullPath,
			Size:        size,
		}, nil
	}

	return nil, ErrNoFreeName
}

// Open открывает опубликованный файл на чтение.
// Каждый вызов возвращает собственный дескриптор, вызывающий обязан его закрыть.
// Отсутствующий файл или не обычный файл — ErrNotFound.
func (fs *FileStore) Open(storagePath string) (*os.File, os.FileInfo, error) {
	if !filepath.IsLocal(storagePath) {
		return nil, nil, fmt.Errorf("%w: недопустимый путь %q", ErrNotFound, storagePath)
	}

	f, err := os.Open(filepath.Join(fs.dataDir, storagePath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, storagePath)
		}
		return nil, nil, fmt.Errorf("ошибка открытия файла %s: %w", storagePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("ошибка получения информации о файле %s: %w", storagePath, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, fmt.Errorf("%w: %s не является обычным файлом", ErrNotFound, storagePath)
	}

	return f, info, nil
}

// FullPath возвращает путь к файлу на диске.
func (fs *FileStore) FullPath(storagePath string) string {
	return filepath.Join(fs.dataDir, storagePath)
}

// DeleteFile удаляет файл с диска. Возвращает nil, если файла уже нет.
func (fs *FileStore) DeleteFile(storagePath string) error {
	err := os.Remove(filepath.Join(fs.dataDir, storagePath))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления файла %s: %w", storagePath, err)
	}
	return nil
}

// FileExists проверяет существование файла на диске.
func (fs *FileStore) FileExists(storagePath string) bool {
	_, err := os.Stat(filepath.Join(fs.dataDir, storagePath))
	return err == nil
}

// Scan возвращает обычные файлы верхнего уровня директории данных.
// Поддиректории не обходятся.
func (fs *FileStore) Scan() ([]Entry, error) {
	dirEntries, err := os.ReadDir(fs.dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка чтения директории %s: %w", fs.dataDir, err)
	}

	result := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Файл удалён между ReadDir и Info
			continue
		}
		name := de.Name()
		result = append(result, Entry{
			Name:    name,
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Temp:    IsTempName(name),
		})
	}
	return result, nil
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}

// IsTempName проверяет, является ли имя временным файлом передачи.
func IsTempName(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, TempSuffix)
}

// CandidateNames возвращает имена для публикации в порядке предпочтения.
// Основное имя выводится из оригинального имени файла, при коллизии
// добавляется id, затем короткий UUID. Без имени используется id.
// Пример: movie.mp4 → movie.mp4, movie_AgAD12.mp4, movie_AgAD12_a1b2c3d4.mp4
func CandidateNames(originalFilename, id, contentType string) []string {
	// Имя от клиента может содержать путь, берётся только последний элемент
	base := path.Base(strings.ReplaceAll(originalFilename, `\`, "/"))
	if base == "." || base == "/" {
		base = ""
	}
	rawExt := filepath.Ext(base)
	rawStem := strings.TrimSuffix(base, rawExt)
	if rawStem == "" {
		rawStem, rawExt = base, ""
	}

	ext := sanitizeExt(rawExt)
	stem := sanitize(rawStem)
	safeID := sanitize(id)
	uid := uuid.New().String()[:8]

	if ext == "" {
		ext = extFromContentType(contentType)
	}

	if stem == "" {
		return []string{
			safeID + ext,
			safeID + "_" + uid + ext,
		}
	}

	// Ограничиваем длину имени для предотвращения проблем с FS
	stem = truncate(stem, 100)

	return []string{
		stem + ext,
		fmt.Sprintf("%s_%s%s", stem, safeID, ext),
		fmt.Sprintf("%s_%s_%s%s", stem, safeID, uid, ext),
	}
}

// sanitize убирает небезопасные символы из строки для использования в имени файла.
// Оставляет буквы, цифры, дефис, подчёркивание и внутренние точки,
// пробелы заменяются на подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			result.WriteRune(r)
		case unicode.IsSpace(r):
			result.WriteRune('_')
		}
	}
	return strings.Trim(result.String(), "._")
}

// sanitizeExt оставляет в расширении только ASCII буквы и цифры.
// Расширение временного файла не допускается.
func sanitizeExt(ext string) string {
	if ext == "" || strings.EqualFold(ext, TempSuffix) {
		return ""
	}
	var result strings.Builder
	result.WriteByte('.')
	for _, r := range ext[1:] {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			result.WriteRune(r)
		}
	}
	if result.Len() == 1 || result.Len() > 11 {
		return ""
	}
	return strings.ToLower(result.String())
}

// extFromContentType подбирает расширение по MIME-типу, по умолчанию .bin.
func extFromContentType(contentType string) string {
	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}

// truncate обрезает строку до max байт по границе руны.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := 0
	for i := range s {
		if i > max {
			break
		}
		cut = i
	}
	return s[:cut]
}

// syncDir выполняет fsync директории, чтобы link пережил сбой питания.
// Ошибки игнорируются: не все файловые системы поддерживают fsync директорий.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// ctxReader прерывает чтение при отмене контекста.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
