// Package httpserver builds the HTTP server hosting the check-in API.
package httpserver

import (
	"net/http"
	"time"
)

// Check-in traffic is bursty: hundreds of small JSON submissions in the
// minutes around a service start, then near silence. Short read limits cut
// off stalled stations quickly; the write timeout leaves room for an
// analytics report over a long date range.
const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 120 * time.Second
)

// New builds the API server around the assembled router.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
