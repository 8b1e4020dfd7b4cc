package pages

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// CatalogItem — карточка записи на главной странице.
type CatalogItem struct {
	ID        string
	Name      string
	Size      string
	Thumbnail string
	WatchURL  string
}

// CatalogData — данные главной страницы.
type CatalogData struct {
	Items   []CatalogItem
	Version string
}

// Catalog — главная страница: сетка карточек всех записей каталога.
func Catalog(data CatalogData) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		if len(data.Items) == 0 {
			b.WriteString(`<p class="empty">Nothing uploaded yet</p>`)
		} else {
			b.WriteString(`<div class="grid">`)
			for _, item := range data.Items {
				b.WriteString(`<a class="card" href="`)
				b.WriteString(safeURL(item.WatchURL))
				b.WriteString(`"><img loading="lazy" src="`)
				b.WriteString(safeURL(item.Thumbnail))
				b.WriteString(`" alt="`)
				b.WriteString(templ.EscapeString(item.Name))
				b.WriteString(`"><div class="name" title="`)
				b.WriteString(templ.EscapeString(item.Name))
				b.WriteString(`">`)
				b.WriteString(templ.EscapeString(item.Name))
				b.WriteString(`</div><div class="size">`)
				b.WriteString(templ.EscapeString(item.Size))
				b.WriteString(`</div></a>`)
			}
			b.WriteString(`</div>`)
		}
		if data.Version != "" {
			b.WriteString(`<footer>KR Stream `)
			b.WriteString(templ.EscapeString(data.Version))
			b.WriteString(`</footer>`)
		}
		_, err := io.WriteString(w, b.String())
		return err
	})
	return layout("KR Stream", body)
}
