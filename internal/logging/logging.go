// Package logging builds the daemon's logr.Logger.
package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
)

// New returns a logger writing one line per entry to w. Entries above
// verbosity are dropped.
func New(w io.Writer, verbosity int) logr.Logger {
	var mu sync.Mutex
	return funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		if prefix != "" {
			_, _ = fmt.Fprintf(w, "%s %s: %s\n", ts, prefix, args)
			return
		}
		_, _ = fmt.Fprintf(w, "%s %s\n", ts, args)
	}, funcr.Options{Verbosity: verbosity})
}
