package runtime

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// ReadyCheck is one named dependency probe behind /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const probeTimeout = 2 * time.Second

// NewBaseMuxWithReady returns a mux pre-wired with liveness and readiness
// endpoints. /healthz always answers ok; /readyz runs every check and lists
// each failing dependency by name.
func NewBaseMuxWithReady(checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		var failing []string
		for _, c := range checks {
			if c.Check == nil {
				continue
			}
			if err := runCheck(r.Context(), c.Check); err != nil {
				name := c.Name
				if name == "" {
					name = "unnamed"
				}
				failing = append(failing, name+": "+err.Error())
			}
		}
		if len(failing) > 0 {
			http.Error(w, strings.Join(failing, "; "), http.StatusServiceUnavailable)
			return
		}
		writeOK(w)
	})
	return mux
}

func runCheck(ctx context.Context, check func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return check(ctx)
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
