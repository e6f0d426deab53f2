// Package swagger публикует описание connect-процедур: OpenAPI 3 документ
// и страницу Swagger UI поверх него.
package swagger

import (
	"crypto/sha256"
	"encoding/hex"
	"html/template"
	"net/http"
	"strings"
	"sync"

	"multimodal/pkg/config"
	"multimodal/pkg/logger"
)

const (
	defaultTitle    = "Multimodal Transit API"
	defaultBasePath = "/swagger"
	specFile        = "openapi.json"
)

// Config параметры страницы документации
type Config struct {
	Title    string
	BasePath string
	// TryItOut разрешает отправлять POST прямо из UI
	TryItOut bool
}

// FromConfig берёт заголовок и путь из http.docs
func FromConfig(cfg config.DocsConfig) Config {
	out := Config{
		Title:    cfg.Title,
		BasePath: "/" + strings.Trim(cfg.Path, "/"),
		TryItOut: cfg.TryItOut,
	}
	if out.Title == "" {
		out.Title = defaultTitle
	}
	if out.BasePath == "/" {
		out.BasePath = defaultBasePath
	}
	return out
}

// SpecURL путь документа
func (c Config) SpecURL() string {
	return c.BasePath + "/" + specFile
}

// Handler отдаёт UI и документ. Документ сериализуется при первом запросе.
type Handler struct {
	cfg Config
	doc *Document

	once sync.Once
	body []byte
	etag string
	err  error
}

// NewHandler связывает документ со страницей
func NewHandler(cfg Config, doc *Document) *Handler {
	if cfg.BasePath == "" {
		cfg.BasePath = defaultBasePath
	}
	if cfg.Title == "" {
		cfg.Title = defaultTitle
	}
	return &Handler{cfg: cfg, doc: doc}
}

// Register вешает страницу, документ и редирект с пути без слэша
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET "+h.cfg.BasePath+"/{$}", h.serveUI)
	mux.HandleFunc("GET "+h.cfg.SpecURL(), h.serveSpec)
	mux.Handle("GET "+h.cfg.BasePath, http.RedirectHandler(h.cfg.BasePath+"/", http.StatusMovedPermanently))
}

func (h *Handler) render() {
	h.body, h.err = h.doc.JSON()
	if h.err != nil {
		return
	}
	sum := sha256.Sum256(h.body)
	h.etag = `"` + hex.EncodeToString(sum[:8]) + `"`
}

func (h *Handler) serveSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(h.render)
	if h.err != nil {
		logger.FromContext(r.Context()).Error("openapi document failed", "error", h.err)
		http.Error(w, "openapi document unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", h.etag)
	if r.Header.Get("If-None-Match") == h.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(h.body)
}

type page struct {
	Title   string
	SpecURL string
	Submit  []string
}

func (h *Handler) serveUI(w http.ResponseWriter, r *http.Request) {
	p := page{Title: h.cfg.Title, SpecURL: h.cfg.SpecURL(), Submit: []string{}}
	if h.cfg.TryItOut {
		p.Submit = []string{"post"}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := uiPage.Execute(w, p); err != nil {
		logger.FromContext(r.Context()).Error("swagger page failed", "error", err)
	}
}

// процедуры connect всегда POST, поэтому в UI разрешён только он
var uiPage = template.Must(template.New("ui").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="docs"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({
  url: {{.SpecURL}},
  dom_id: "#docs",
  supportedSubmitMethods: {{.Submit}},
  requestInterceptor: function (req) {
    req.headers["Connect-Protocol-Version"] = "1";
    return req;
  },
  defaultModelsExpandDepth: -1,
  docExpansion: "list"
});
</script>
</body>
</html>`))
