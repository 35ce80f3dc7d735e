package middleware

import "net/http"

// Preflight завершает любой OPTIONS-запрос ответом 204 без тела.
// Ставится после CORS middleware, который уже выставил заголовки.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AnyOrigin добавляет Access-Control-Allow-Origin: * к ответам, для
// которых CORS middleware его не выставил (запросы без Origin).
func AnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Access-Control-Allow-Origin") == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		next.ServeHTTP(w, r)
	})
}
