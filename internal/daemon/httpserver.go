package daemon

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"
)

// httpServerRunner wraps net/http.Server with the ctx-cancellation shape
// the rest of the daemon's subsystems use, so the API listener shuts down
// alongside everything else.
type httpServerRunner struct {
	addr    string
	handler http.Handler
}

func (r *httpServerRunner) run(ctx context.Context) {
	srv := &http.Server{Addr: r.addr, Handler: r.handler}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("[daemon] api server error: %v", err)
	}
}
