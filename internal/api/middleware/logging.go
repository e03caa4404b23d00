// logging.go — журнал обращений к API тегов через slog.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// statusRecorder запоминает код ответа для метрик и журнала.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap нужен http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// AccessLog пишет по записи на запрос: шаблон маршрута chi, параметры пути
// (тип и id сущности, id тега или конфигурации), статус и длительность.
// Успешные запросы к путям с префиксами quiet (пробы, метрики) пишутся на DEBUG.
// 4xx — WARN, 5xx — ERROR.
func AccessLog(logger *slog.Logger, quiet ...string) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newResponseWriter(w)

			next.ServeHTTP(rec, r)

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			case hasAnyPrefix(r.URL.Path, quiet):
				level = slog.LevelDebug
			}
			if !logger.Enabled(r.Context(), level) {
				return
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
			}
			if params := routeParams(r); len(params) > 0 {
				attrs = append(attrs, slog.Attr{Key: "params", Value: slog.GroupValue(params...)})
			}
			attrs = append(attrs,
				slog.Int("status", rec.statusCode),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			logger.LogAttrs(r.Context(), level, "Запрос обработан", attrs...)
		})
	}
}

// routeParams возвращает параметры пути, разобранные chi.
func routeParams(r *http.Request) []slog.Attr {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for i, key := range rctx.URLParams.Keys {
		if key == "" || key == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		attrs = append(attrs, slog.String(key, rctx.URLParams.Values[i]))
	}
	return attrs
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
