package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/bigkaa/krstream/internal/domain/model"
)

// Sender — отправка сообщений в Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChannelPublisher отправляет резервные копии в канал бэкапов и
// уведомления в канал журнала. Канал с id 0 отключён.
// Исходящие сообщения ограничены одним в interval.
type ChannelPublisher struct {
	api          Sender
	backupChatID int64
	logChatID    int64
	limiter      *rate.Limiter
	logger       *slog.Logger
}

// NewChannelPublisher создаёт публикатор. interval <= 0 снимает ограничение.
func NewChannelPublisher(api Sender, backupChatID, logChatID int64, interval time.Duration, logger *slog.Logger) *ChannelPublisher {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &ChannelPublisher{
		api:          api,
		backupChatID: backupChatID,
		logChatID:    logChatID,
		limiter:      rate.NewLimiter(limit, 1),
		logger:       logger.With(slog.String("component", "channel_publisher")),
	}
}

// Mirror отправляет файл в канал бэкапов с подписью "🎬 <имя>".
func (p *ChannelPublisher) Mirror(ctx context.Context, rec *model.MediaRecord, fullPath string) error {
	if p.backupChatID == 0 {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	doc := tgbotapi.NewDocument(p.backupChatID, tgbotapi.FilePath(fullPath))
	doc.Caption = "🎬 " + rec.DisplayName
	if _, err := p.api.Send(doc); err != nil {
		return fmt.Errorf("отправка в канал бэкапов: %w", err)
	}

	p.logger.Debug("Резервная копия отправлена",
		slog.String("id", rec.ID),
		slog.Int64("chat_id", p.backupChatID),
	)
	return nil
}

// Notify отправляет текст в канал журнала.
func (p *ChannelPublisher) Notify(ctx context.Context, text string) error {
	if p.logChatID == 0 {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	if _, err := p.api.Send(tgbotapi.NewMessage(p.logChatID, text)); err != nil {
		return fmt.Errorf("отправка в канал журнала: %w", err)
	}
	return nil
}
