// Пакет bot — Telegram-бот оператора: приём медиафайлов через long
// polling, ответы оператору, резервные копии и журнал событий в каналах.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bigkaa/krstream/internal/config"
	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/service"
)

// Тексты ответов оператору.
const (
	msgAccessDenied = "🚫 Access Denied"
	msgGreeting     = "👋 Send a movie file to upload."
	msgUploaded     = "✅ Uploaded successfully!"
)

// pollTimeout — таймаут long polling в секундах.
const pollTimeout = 30

// API — используемая часть Telegram Bot API. Реализуется *tgbotapi.BotAPI.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Ingester — приём вложения в каталог.
type Ingester interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*model.MediaRecord, error)
}

// NewTelegramAPI подключается к Bot API. При заданном
// KR_TELEGRAM_API_ENDPOINT используется локальный сервер Bot API,
// снимающий ограничение 20 МБ на скачивание файлов.
func NewTelegramAPI(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	if cfg.TelegramAPIEndpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(cfg.BotToken, cfg.TelegramAPIEndpoint)
	}
	return tgbotapi.NewBotAPI(cfg.BotToken)
}

// Bot — обработчик входящих сообщений Telegram.
type Bot struct {
	api        API
	ingest     Ingester
	cfg        *config.Config
	httpClient *http.Client
	logger     *slog.Logger

	wg sync.WaitGroup
}

// New создаёт бота. httpClient используется для скачивания вложений;
// nil — http.DefaultClient.
func New(api API, ingest Ingester, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *Bot {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Bot{
		api:        api,
		ingest:     ingest,
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "bot")),
	}
}

// Run получает обновления до отмены ctx. Каждое сообщение обрабатывается
// в отдельной горутине; при остановке Run дожидается их завершения.
func (b *Bot) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("Бот запущен", slog.Int64("operator_id", b.cfg.OperatorID))

	defer func() {
		b.wg.Wait()
		b.logger.Info("Бот остановлен")
	}()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := update.Message
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleMessage(ctx, msg)
			}()
		}
	}
}

// handleMessage обрабатывает одно сообщение. Паника не выходит за пределы
// обработчика и не останавливает бота.
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Паника при обработке сообщения",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var senderID int64
	if msg.From != nil {
		senderID = msg.From.ID
	}

	if msg.IsCommand() {
		if msg.Command() == "start" {
			if senderID != b.cfg.OperatorID {
				b.reply(msg, msgAccessDenied)
				return
			}
			b.reply(msg, msgGreeting)
		}
		return
	}

	if !hasMedia(msg) {
		return
	}

	req := service.IngestRequest{SenderID: senderID}
	if msg.Video != nil {
		req.Video = b.attachment(msg.Video.FileID, msg.Video.FileUniqueID,
			msg.Video.FileName, msg.Video.MimeType, int64(msg.Video.FileSize))
	}
	if msg.Document != nil {
		req.Document = b.attachment(msg.Document.FileID, msg.Document.FileUniqueID,
			msg.Document.FileName, msg.Document.MimeType, int64(msg.Document.FileSize))
	}

	rec, err := b.ingest.Ingest(ctx, req)
	if err != nil {
		b.reply(msg, service.OperatorMessage(err))
		return
	}
	b.reply(msg, b.uploadedText(rec))
}

// uploadedText формирует ответ об успешной загрузке.
func (b *Bot) uploadedText(rec *model.MediaRecord) string {
	var sb strings.Builder
	sb.WriteString(msgUploaded)
	fmt.Fprintf(&sb, "\n🎬 %s (%s)", rec.DisplayName, humanize.IBytes(uint64(rec.SizeBytes)))
	fmt.Fprintf(&sb, "\n🆔 %s", rec.ID)
	if b.cfg.PublicURL != "" {
		sb.WriteString("\n🔗 ")
		sb.WriteString(b.cfg.WatchURL(rec.ID))
	}
	return sb.String()
}

// attachment описывает вложение Telegram. Байты скачиваются только при
// вызове Open, т.е. после проверки отправителя.
func (b *Bot) attachment(fileID, uniqueID, fileName, mimeType string, size int64) *service.Attachment {
	return &service.Attachment{
		UniqueID:     uniqueID,
		FileName:     fileName,
		MimeType:     mimeType,
		DeclaredSize: size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return b.download(ctx, fileID)
		},
	}
}

// download открывает поток файла по прямой ссылке Bot API.
func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("получение ссылки на файл: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("скачивание файла: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("скачивание файла: неожиданный статус %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	if msg.Chat == nil {
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Warn("Ошибка отправки ответа",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
	}
}

// hasMedia — сообщение содержит файл. Вложения, отличные от видео и
// документа, передаются в приём и получают ответ о неверном формате.
func hasMedia(msg *tgbotapi.Message) bool {
	return msg.Video != nil || msg.Document != nil || len(msg.Photo) > 0 ||
		msg.Audio != nil || msg.Voice != nil || msg.Animation != nil ||
		msg.VideoNote != nil || msg.Sticker != nil
}
