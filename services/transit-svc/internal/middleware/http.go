// Package middleware HTTP-обёртки командного API: CORS и сжатие ответов
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzhttp"

	"multimodal/pkg/config"
)

// connectHeaders заголовки, нужные браузерным connect-клиентам
var connectHeaders = []string{
	"Accept",
	"Accept-Encoding",
	"Content-Type",
	"Connect-Protocol-Version",
	"Connect-Timeout-Ms",
	"X-Request-ID",
	"X-User-Agent",
}

// CORS middleware для connect и websocket-эндпоинтов
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	allowedHeaders := prepareAllowedHeaders(cfg.AllowedHeaders)
	allowedMethods := strings.Join(cfg.AllowedMethods, ", ")
	if allowedMethods == "" {
		allowedMethods = "GET, POST, OPTIONS"
	}
	exposedHeaders := strings.Join(cfg.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if allowedOrigin := matchOrigin(cfg.AllowedOrigins, origin); allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)

			if exposedHeaders != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposedHeaders)
			}

			if cfg.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Preflight
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin возвращает значение Access-Control-Allow-Origin или ""
func matchOrigin(allowed []string, origin string) string {
	if origin == "" {
		return ""
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return origin
		}
	}
	return ""
}

// prepareAllowedHeaders раскрывает wildcard и добавляет заголовки connect
func prepareAllowedHeaders(headers []string) string {
	for _, h := range headers {
		if h == "*" {
			return strings.Join(connectHeaders, ", ")
		}
	}

	out := append([]string(nil), headers...)
	for _, required := range connectHeaders[2:4] {
		found := false
		for _, h := range out {
			if strings.EqualFold(h, required) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, required)
		}
	}
	return strings.Join(out, ", ")
}

// Compress сжимает ответы gzip; websocket upgrade проходит без обёртки
func Compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}
