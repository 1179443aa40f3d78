package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"gpuclockd/internal/sysattr"
	"gpuclockd/internal/tuning"
)

// AttrPrefix is the URL prefix of attribute files: /sys/<device>/<attr>.
const AttrPrefix = "/sys/"

// maxStoreBytes matches the one-page limit of a sysfs store.
const maxStoreBytes = 4096

// AttrStore serves a device's attribute group over HTTP.
type AttrStore struct {
	Device *sysattr.Device
	// Limiter, when set, bounds attribute writes across all clients.
	Limiter *rate.Limiter
}

func splitAttrPath(p string) (device, attr string, ok bool) {
	rest := strings.TrimPrefix(p, AttrPrefix)
	if rest == p || rest == "" {
		return "", "", false
	}
	device, attr, _ = strings.Cut(strings.TrimSuffix(rest, "/"), "/")
	if device == "" || strings.Contains(attr, "/") {
		return "", "", false
	}
	return device, attr, true
}

func attrErrorStatus(err error) int {
	switch {
	case errors.Is(err, sysattr.ErrNoAttribute):
		return http.StatusNotFound
	case errors.Is(err, sysattr.ErrPermission):
		return http.StatusForbidden
	case errors.Is(err, tuning.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s AttrStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		devName, attr, ok := splitAttrPath(r.URL.Path)
		if !ok || s.Device == nil || devName != s.Device.Name() || !s.Device.Registered() {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-store")

		// Directory listing: one "<mode> <name>" line per attribute.
		if attr == "" {
			if r.Method != http.MethodGet {
				w.Header().Set("Allow", http.MethodGet)
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			for _, name := range s.Device.Attributes() {
				mode, err := s.Device.Mode(name)
				if err != nil {
					continue
				}
				_, _ = fmt.Fprintf(w, "%s %s\n", mode.Perm(), name)
			}
			return
		}

		switch r.Method {
		case http.MethodGet:
			out, err := s.Device.Show(attr)
			if err != nil {
				http.Error(w, err.Error(), attrErrorStatus(err))
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, out)

		case http.MethodPut, http.MethodPost:
			if s.Limiter != nil && !s.Limiter.Allow() {
				http.Error(w, "too many writes", http.StatusTooManyRequests)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxStoreBytes)
			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooBig *http.MaxBytesError
				if errors.As(err, &tooBig) {
					http.Error(w, fmt.Sprintf("payload exceeds %d bytes", maxStoreBytes), http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
				return
			}
			n, err := s.Device.Store(attr, string(body))
			if err != nil {
				http.Error(w, err.Error(), attrErrorStatus(err))
				return
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = fmt.Fprintf(w, "%d\n", n)

		default:
			w.Header().Set("Allow", "GET, PUT, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
