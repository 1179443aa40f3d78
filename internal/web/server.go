package web

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Handler(status *Status, attrs AttrStore, logs *LogBuffer, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowOnly(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	// Attribute files: GET shows, PUT/POST stores.
	mux.Handle(AttrPrefix, attrs.Handler())

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/api/about", AboutHandler())

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowOnly(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gpuclockd</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>gpuclockd</h1><ul>")
		if dev := attrs.Device; dev != nil {
			for _, name := range dev.Attributes() {
				p := AttrPrefix + dev.Name() + "/" + name
				out, err := dev.Show(name)
				if err != nil {
					out = err.Error()
				}
				_, _ = fmt.Fprintf(w, "<li><a href=\"%s\">%s</a><pre>%s</pre></li>", html.EscapeString(p), html.EscapeString(name), html.EscapeString(out))
			}
		}
		_, _ = fmt.Fprintf(w, "</ul><p>See <a href=\"/api/status\">/api/status</a>.</p></body></html>")
	})

	return mux
}

func newServer(h http.Handler) *http.Server {
	return &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}
}

// ServeListener serves h on ln until ctx is canceled. ln is closed on return.
func ServeListener(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := newServer(h)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
