package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"llamactl/internal/notify"
	"llamactl/internal/registry"
	"llamactl/internal/runner"
	"llamactl/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Start(ctx context.Context, models ...string) (string, error)
	Stop()
	Query(ctx context.Context, req types.QueryRequest, onText func(string)) error
	Installed() ([]string, error)
	Models() []types.Model
	Exec(ctx context.Context, command, cwd string) (bool, error)
	Running() (bool, string)
	Active() (runner.Handle, bool)
	Home() string
}

// EventSource feeds /events. Subscribe returns a channel of events and a
// function that releases the subscription.
type EventSource interface {
	Subscribe() (<-chan notify.Event, func())
}

// NewMux builds the router. events may be nil, in which case /events
// answers 404.
func NewMux(svc Service, events EventSource) http.Handler {
	r := chi.NewRouter()

	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(corsOptions()))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	// Streaming endpoints stay outside the compressor so each line is
	// flushed to the client as it is produced.
	r.Post("/query", queryHandler(svc))
	if events != nil {
		r.Get("/events", eventsHandler(events))
	}

	r.Group(func(r chi.Router) {
		// Compression for JSON endpoints
		r.Use(middleware.Compress(5))

		r.Post("/install", installHandler(svc))
		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			svc.Stop()
			w.WriteHeader(http.StatusNoContent)
		})
		r.Post("/exec", execHandler(svc))
		r.Get("/installed", func(w http.ResponseWriter, r *http.Request) {
			models, err := svc.Installed()
			if err != nil {
				writeJSONError(w, statusFor(err), err.Error())
				return
			}
			if models == nil {
				models = []string{}
			}
			writeJSON(w, http.StatusOK, types.InstalledResponse{Models: models})
		})
		r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.Models()})
		})
		r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, status(svc))
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

func corsOptions() cors.Options {
	methods := corsAllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := corsAllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Log-Level"}
	}
	return cors.Options{
		AllowedOrigins: corsAllowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}
}

func status(svc Service) types.StatusResponse {
	running, runID := svc.Running()
	st := types.StatusResponse{Home: svc.Home(), Running: running, RunID: runID}
	if h, ok := svc.Active(); ok {
		st.Active = h.Command
		st.PID = h.PID
	}
	return st
}

// decodeJSON applies the Content-Type check and body limit shared by every
// POST endpoint. It writes the error response itself and reports whether
// the handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// If exceeded size, MaxBytesReader may cause an error; still return 400 to avoid size leak details
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// installHandler starts a background install and answers 202 with its run id.
//
// @Summary      Start an install run
// @Tags         install
// @Accept       json
// @Produce      json
// @Param        body  body      types.InstallRequest  true  "models to install"
// @Success      202   {object}  types.InstallResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Router       /install [post]
func installHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.InstallRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.Models) == 0 {
			writeJSONError(w, http.StatusBadRequest, "models is required")
			return
		}
		// The run outlives the request; only server shutdown cancels it.
		runID, err := svc.Start(serverBaseCtx, req.Models...)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusConflict {
				IncrementRejected("install_running")
			}
			logRequest(r, requestLogLevel(r), "install rejected", code, time.Time{}, err)
			writeJSONError(w, code, err.Error())
			return
		}
		logRequest(r, requestLogLevel(r), "install started", http.StatusAccepted, time.Time{}, nil)
		writeJSON(w, http.StatusAccepted, types.InstallResponse{RunID: runID})
	}
}

// execHandler runs one command line and waits for it.
//
// @Summary      Run a shell command in the home directory
// @Tags         exec
// @Accept       json
// @Produce      json
// @Param        body  body      types.ExecRequest  true  "command"
// @Success      200   {object}  types.ExecResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Router       /exec [post]
func execHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.ExecRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Command) == "" {
			writeJSONError(w, http.StatusBadRequest, "command is required")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		ok, err := svc.Exec(ctx, req.Command, req.Cwd)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusConflict {
				IncrementRejected("runner_busy")
			}
			logRequest(r, requestLogLevel(r), "exec rejected", code, time.Time{}, err)
			writeJSONError(w, code, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, types.ExecResponse{Success: ok})
	}
}

// ndjsonWriter writes one JSON value per line and delays the 200 header
// until the first value, so errors before streaming still map to a status.
type ndjsonWriter struct {
	w       http.ResponseWriter
	out     io.Writer
	flush   func()
	started bool
}

func newNDJSONWriter(w http.ResponseWriter, out io.Writer) *ndjsonWriter {
	nw := &ndjsonWriter{w: w, out: out, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		nw.flush = f.Flush
	}
	return nw
}

func (nw *ndjsonWriter) start() {
	if nw.started {
		return
	}
	nw.started = true
	nw.w.Header().Set("Content-Type", "application/x-ndjson")
	nw.w.WriteHeader(http.StatusOK)
}

func (nw *ndjsonWriter) write(v any) error {
	nw.start()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := nw.out.Write(b); err != nil {
		return err
	}
	nw.flush()
	return nil
}

// queryHandler streams generated text as NDJSON QueryChunk lines, ending
// with {"done":true}.
//
// @Summary      Run a completion
// @Tags         query
// @Accept       json
// @Produce      application/x-ndjson
// @Param        body  body      types.QueryRequest  true  "query"
// @Success      200   {object}  types.QueryChunk
// @Failure      400   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Failure      415   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Failure      504   {object}  types.ErrorResponse
// @Router       /query [post]
func queryHandler(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.QueryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		// Basic validation
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		if req.Model != "" {
			if _, err := registry.Parse(req.Model); err != nil {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
		}

		lvl := requestLogLevel(r)
		out := io.Writer(w)
		if lvl >= LevelDebug {
			out = io.MultiWriter(w, &loggingLineWriter{prefix: "query"})
		}
		nw := newNDJSONWriter(w, out)

		start := time.Now()
		logRequest(r, lvl, "query start", 0, time.Time{}, nil)

		// Join server base context with request context so shutdown cancels work too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if d := QueryTimeout(); d > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, d)
			defer tcancel()
		}

		var writeErr error
		err := svc.Query(ctx, req, func(text string) {
			if writeErr != nil {
				return
			}
			writeErr = nw.write(types.QueryChunk{Text: text})
		})
		if err == nil {
			err = writeErr
		}
		if err != nil {
			// If context was canceled (client disconnect), just return.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			code := statusFor(err)
			logRequest(r, lvl, "query end", code, start, err)
			if !nw.started {
				writeJSONError(w, code, err.Error())
			}
			return
		}
		_ = nw.write(types.QueryChunk{Done: true})
		logRequest(r, lvl, "query end", http.StatusOK, start, nil)
	}
}

// eventsHandler streams notification events as NDJSON until the client
// goes away or the server shuts down.
//
// @Summary      Stream pipeline events
// @Tags         events
// @Produce      application/x-ndjson
// @Success      200  {object}  notify.Event
// @Router       /events [get]
func eventsHandler(events EventSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, unsubscribe := events.Subscribe()
		defer unsubscribe()
		eventSubscribers.Inc()
		defer eventSubscribers.Dec()

		nw := newNDJSONWriter(w, w)
		nw.start()
		nw.flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-serverBaseCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := nw.write(ev); err != nil {
					if !errors.Is(err, context.Canceled) {
						logError("events write", err)
					}
					return
				}
			}
		}
	}
}
