package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/fiturae/fiturae/internal/middleware"
	"github.com/fiturae/fiturae/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// ページテンプレート名。
const (
	pageStart   = "start.html"
	pageLogin   = "login.html"
	pageHome    = "home.html"
	pageWorkout = "workout.html"
	pageForm    = "form.html"
	pageError   = "error.html"
)

// renderer はページごとにレイアウトと組み合わせたテンプレートを保持する。
type renderer struct {
	pages  map[string]*template.Template
	logger *slog.Logger
}

func newRenderer(logger *slog.Logger) (*renderer, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{pageStart, pageLogin, pageHome, pageWorkout, pageForm, pageError} {
		tmpl, err := template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("テンプレート %s の読み込みに失敗しました: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &renderer{pages: pages, logger: logger}, nil
}

// layoutData は全ページ共通のテンプレートデータ。
type layoutData struct {
	CSRFToken string
	Viewer    *session.Identity
}

func newLayoutData(r *http.Request) layoutData {
	data := layoutData{CSRFToken: middleware.CSRFTokenFromContext(r.Context())}
	if v := ViewerFromContext(r.Context()); v != nil {
		identity := v.Identity
		data.Viewer = &identity
	}
	return data
}

// render はテンプレートをバッファに描画してから書き込む。
// 描画に失敗した場合は途中までのHTMLを返さず500にする。
func (rd *renderer) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := rd.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		rd.logger.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

type errorPage struct {
	layoutData
	Heading string
	Message string
}

func (rd *renderer) renderError(w http.ResponseWriter, r *http.Request, status int, heading, message string) {
	rd.render(w, status, pageError, errorPage{
		layoutData: newLayoutData(r),
		Heading:    heading,
		Message:    message,
	})
}
