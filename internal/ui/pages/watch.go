package pages

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// WatchData — данные страницы просмотра.
type WatchData struct {
	ID          string
	Name        string
	Size        string
	Thumbnail   string
	StreamURL   string
	ContentType string
	UploadedAt  string
}

// Watch — страница просмотра: HTML5-плеер, который сам запрашивает
// диапазоны у /stream/{id}.
func Watch(data WatchData) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<h1>`)
		b.WriteString(templ.EscapeString(data.Name))
		b.WriteString(`</h1><video controls preload="metadata" poster="`)
		b.WriteString(safeURL(data.Thumbnail))
		b.WriteString(`"><source src="`)
		b.WriteString(safeURL(data.StreamURL))
		b.WriteString(`"`)
		if data.ContentType != "" {
			b.WriteString(` type="`)
			b.WriteString(templ.EscapeString(data.ContentType))
			b.WriteString(`"`)
		}
		b.WriteString(`></video><p class="meta">`)
		b.WriteString(templ.EscapeString(data.Size))
		if data.UploadedAt != "" {
			b.WriteString(` · uploaded `)
			b.WriteString(templ.EscapeString(data.UploadedAt))
		}
		b.WriteString(` · <a href="`)
		b.WriteString(safeURL(data.StreamURL))
		b.WriteString(`" download>Download</a></p>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
	return layout(data.Name+" · KR Stream", body)
}

// NotFound — страница 404.
func NotFound(message string) templ.Component {
	return messagePage("Not found", message)
}

// ErrorPage — страница внутренней ошибки.
func ErrorPage(message string) templ.Component {
	return messagePage("Error", message)
}

func messagePage(title, message string) templ.Component {
	body := templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="empty"><h1>`+templ.EscapeString(title)+
			`</h1><p>`+templ.EscapeString(message)+`</p><p><a href="/">Back to catalog</a></p></div>`)
		return err
	})
	return layout(title+" · KR Stream", body)
}
