package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the permissive policy the mobile and admin clients rely on.
// Preflight requests are answered with 200 without reaching the routes.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Client-Info", "Apikey", "X-Requested-With", "X-Paystack-Signature"},
		ExposedHeaders:     []string{requestIDHeader},
		AllowCredentials:   false,
		MaxAge:             300,
		OptionsPassthrough: true,
	}).Handler
}

// Preflight answers any OPTIONS request with 200 and an empty body.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
