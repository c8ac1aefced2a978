package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"simdash/internal/observability"
	"simdash/internal/render"
	"simdash/internal/telemetry"
	"simdash/logging"
)

var errNoController = errors.New("playback is not running")

const maxControlBody = 1 << 16

type HandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Counters      *telemetry.Counters
	RouterStats   func() logging.RouterStats
	Nodes         func() render.NodeView
	Observability observability.Config
}

func NewHandler(hub *Hub, cfg HandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		payload := struct {
			Status     string               `json:"status"`
			ServerTime int64                `json:"serverTime"`
			Playback   any                  `json:"playback,omitempty"`
			Clients    []string             `json:"clients"`
			Telemetry  map[string]uint64    `json:"telemetry"`
			Logging    *logging.RouterStats `json:"logging,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Clients:    hub.ClientIDs(),
			Telemetry:  cfg.Counters.Snapshot(),
		}
		if hub.controller != nil {
			payload.Playback = hub.controller.Status()
		}
		if cfg.RouterStats != nil {
			stats := cfg.RouterStats()
			payload.Logging = &stats
		}
		writeJSON(w, http.StatusOK, payload, logger)
	})

	mux.HandleFunc("/params", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, hub.paramsMessage(), logger)
	})

	mux.HandleFunc("/nodes", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Nodes == nil {
			httpError(w, "node table not configured", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cfg.Nodes(), logger)
	})

	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpError(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxControlBody))
		if err != nil {
			httpError(w, "failed to read body", http.StatusBadRequest)
			return
		}
		cmd, err := decodeControl(body)
		if err != nil {
			hub.metrics.Add(metricCommandsFailed, 1)
			httpError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := hub.dispatch(cmd); err != nil {
			hub.metrics.Add(metricCommandsFailed, 1)
			httpError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		hub.metrics.Add(metricCommands, 1)
		writeJSON(w, http.StatusAccepted, struct {
			Status string `json:"status"`
		}{Status: "accepted"}, logger)
	})

	mux.HandleFunc("/ws", hub.ServeWS)

	if cfg.Observability.Register(mux) {
		logger.Printf("[dashboard] pprof endpoints enabled under /debug/pprof/")
	}

	if cfg.ClientDir != "" {
		fs := http.FileServer(http.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func writeJSON(w http.ResponseWriter, code int, payload any, logger telemetry.Logger) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("[dashboard] failed to encode response: %v", err)
		httpError(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func httpError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}{Status: "error", Error: msg})
}
