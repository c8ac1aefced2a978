package observability

import (
	"net/http"
	"net/http/pprof"
)

// Config captures opt-in observability toggles that wire into the dashboard.
type Config struct {
	EnablePprofTrace bool `yaml:"enablePprofTrace"`
}

// Register mounts the pprof endpoints under /debug/pprof/ when enabled and
// reports whether it did.
func (c Config) Register(mux *http.ServeMux) bool {
	if !c.EnablePprofTrace || mux == nil {
		return false
	}
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return true
}
