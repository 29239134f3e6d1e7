// Package site serves the embedded live match viewer.
package site

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Register attaches the viewer at / to r. API routes registered on r take
// precedence over the catch-all.
func Register(r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	files := http.FileServer(FS())
	r.Get("/*", files.ServeHTTP)
}
