// Пакет handlers — HTTP-обработчики KR Stream: страницы каталога,
// отдача медиафайлов и health endpoints.
package handlers

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/krstream/internal/catalog"
	"github.com/bigkaa/krstream/internal/config"
	"github.com/bigkaa/krstream/internal/domain/model"
	"github.com/bigkaa/krstream/internal/ui/pages"
)

// CatalogHandler — обработчик страниц веб-каталога.
type CatalogHandler struct {
	catalog catalog.Store
	logger  *slog.Logger
}

// NewCatalogHandler создаёт обработчик страниц каталога.
func NewCatalogHandler(cat catalog.Store, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: cat,
		logger:  logger.With(slog.String("component", "ui.catalog")),
	}
}

// HandleIndex обрабатывает GET / — сетка всех записей каталога.
func (h *CatalogHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Ошибка чтения каталога", slog.String("error", err.Error()))
		h.render(w, r, http.StatusInternalServerError, pages.ErrorPage("Catalog is temporarily unavailable"))
		return
	}

	data := pages.CatalogData{
		Items:   make([]pages.CatalogItem, 0, len(records)),
		Version: config.Version,
	}
	for _, rec := range records {
		data.Items = append(data.Items, pages.CatalogItem{
			ID:        rec.ID,
			Name:      rec.DisplayName,
			Size:      humanize.IBytes(uint64(rec.SizeBytes)),
			Thumbnail: rec.ThumbnailRef,
			WatchURL:  "/watch/" + rec.ID,
		})
	}

	h.render(w, r, http.StatusOK, pages.Catalog(data))
}

// HandleWatch обрабатывает GET /watch/{id} — страница с плеером.
func (h *CatalogHandler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("Ошибка чтения каталога",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		h.render(w, r, http.StatusInternalServerError, pages.ErrorPage("Catalog is temporarily unavailable"))
		return
	}
	if rec == nil {
		h.render(w, r, http.StatusNotFound, pages.NotFound("Media "+id+" not found"))
		return
	}

	h.render(w, r, http.StatusOK, pages.Watch(watchData(rec)))
}

func watchData(rec *model.MediaRecord) pages.WatchData {
	return pages.WatchData{
		ID:          rec.ID,
		Name:        rec.DisplayName,
		Size:        humanize.IBytes(uint64(rec.SizeBytes)),
		Thumbnail:   rec.ThumbnailRef,
		StreamURL:   "/stream/" + rec.ID,
		ContentType: rec.ContentType,
		UploadedAt:  humanize.Time(rec.CreatedAt),
	}
}

func (h *CatalogHandler) render(w http.ResponseWriter, r *http.Request, status int, page templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := page.Render(r.Context(), w); err != nil {
		h.logger.Error("Ошибка рендеринга страницы",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
