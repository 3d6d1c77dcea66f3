// Package httpserver carries the timeout profile shared by every listener.
package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server around the handler. Write timeout leaves room for
// a decision whose audit append is still retrying.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}
}
