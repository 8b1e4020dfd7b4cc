// Пакет pages — HTML-страницы веб-каталога KR Stream.
// Страницы собираются из templ.Component; все пользовательские
// значения экранируются через templ.EscapeString, ссылки проходят
// через templ.URL.
package pages

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

const styles = `body{margin:0;font-family:system-ui,sans-serif;background:#141414;color:#e5e5e5}
header{padding:16px 32px;background:#000}
header a{color:#e50914;font-size:24px;font-weight:700;text-decoration:none}
main{padding:24px 32px}
.grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(180px,1fr));gap:16px}
.card{color:inherit;text-decoration:none}
.card img{width:100%;aspect-ratio:2/3;object-fit:cover;border-radius:4px;background:#222}
.card .name{margin-top:6px;overflow:hidden;text-overflow:ellipsis;white-space:nowrap}
.card .size,.meta{color:#999;font-size:13px}
video{width:100%;max-height:75vh;background:#000}
.empty{color:#999;text-align:center;padding:64px 0}
footer{padding:16px 32px;color:#555;font-size:12px}`

// layout оборачивает содержимое страницы в общий HTML-каркас.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1"><title>`+
			templ.EscapeString(title)+`</title><style>`+styles+`</style></head><body>`+
			`<header><a href="/">KR Stream</a></header><main>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

// safeURL возвращает экранированный URL для атрибута. Небезопасные
// схемы (javascript: и т.п.) заменяются заглушкой templ.
func safeURL(u string) string {
	return templ.EscapeString(string(templ.URL(u)))
}
