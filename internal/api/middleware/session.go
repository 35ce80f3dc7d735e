// session.go — middleware сессии клиента.
// Читает cookie relay_session, находит или создаёт сессию и кладёт её
// идентификатор в контекст запроса. Cookie переустанавливается на каждом
// запросе, чтобы его MaxAge отсчитывался от последней активности.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/bigkaa/goartstore/relay-module/internal/api/errors"
)

// DefaultSessionCookie — имя cookie сессии.
const DefaultSessionCookie = "relay_session"

// SessionStore — источник сессий.
type SessionStore interface {
	GetOrCreate(token string) (sessionID string, isNew bool, err error)
}

// SessionCookie — параметры cookie сессии.
type SessionCookie struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// Set выдаёт клиенту cookie с токеном сессии.
func (c SessionCookie) Set(w http.ResponseWriter, sessionID string) {
	name := c.Name
	if name == "" {
		name = DefaultSessionCookie
	}

	// Предыдущий Set-Cookie с тем же именем заменяется (сброс сессии
	// выдаёт новый токен после middleware)
	h := w.Header()
	kept := h["Set-Cookie"][:0]
	for _, v := range h["Set-Cookie"] {
		if !strings.HasPrefix(v, name+"=") {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		h.Del("Set-Cookie")
	} else {
		h["Set-Cookie"] = kept
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(c.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionKey struct{}

// SessionID возвращает идентификатор сессии из контекста.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// WithSessionID кладёт идентификатор сессии в контекст.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

// Session возвращает middleware привязки запроса к сессии.
func Session(store SessionStore, cookie SessionCookie, logger *slog.Logger) func(http.Handler) http.Handler {
	name := cookie.Name
	if name == "" {
		name = DefaultSessionCookie
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if c, err := r.Cookie(name); err == nil {
				token = c.Value
			}

			sessionID, isNew, err := store.GetOrCreate(token)
			if err != nil {
				logger.Error("Ошибка создания сессии",
					slog.String("error", err.Error()),
				)
				apierrors.InternalError(w, "Не удалось создать сессию")
				return
			}
			// Cookie переустанавливается на каждый запрос
			cookie.Set(w, sessionID)
			if isNew {
				logger.Debug("Создана новая сессия")
			}

			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}
