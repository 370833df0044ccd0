package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS returns the cross-origin middleware. The API sits behind an
// access proxy that authenticates the browser, so origins are open and
// identity rides on proxy headers rather than cookies.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler
}
