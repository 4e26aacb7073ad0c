package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
	"github.com/leapstack-labs/leapmp/pkg/session"
)

// maxBody limits request bodies.
const maxBody = 16 << 20

func (s *Server) routes(r chi.Router) {
	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Post("/eval", s.eval)
	r.Post("/read", s.read)
	r.Post("/read-data", s.readData)
	r.Post("/solve", s.solve)
	r.Post("/reset", s.reset)

	r.Get("/options/{name}", s.getOption)
	r.Put("/options/{name}", s.setOption)
	r.Get("/entities/{kind}", s.entities)
	r.Get("/value", s.value)
	r.Get("/data", s.getData)
	r.Post("/data", s.setData)
	r.Get("/events", s.events)
}

// StatementsRequest is the body of POST /eval.
type StatementsRequest struct {
	Statements string `json:"statements"`
}

// PathRequest is the body of POST /read and /read-data.
type PathRequest struct {
	Path string `json:"path"`
}

// OptionRequest is the body of PUT /options/{name}.
type OptionRequest struct {
	Value any `json:"value"`
}

// RunResponse is returned by statement-running requests.
type RunResponse struct {
	Output []outputLine `json:"output"`
}

// OptionResponse is returned by GET /options/{name}.
type OptionResponse struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error      string             `json:"error"`
	Diagnostic *engine.Diagnostic `json:"diagnostic,omitempty"`
	Output     []outputLine       `json:"output,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok", "session": s.sess.ID(), "running": s.sess.IsRunning()}
	if !s.sess.IsRunning() {
		status = http.StatusServiceUnavailable
		body["status"] = "closed"
	}
	writeJSON(w, status, body)
}

func (s *Server) eval(w http.ResponseWriter, r *http.Request) {
	var req StatementsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Statements) == "" {
		writeError(w, http.StatusBadRequest, errors.New("statements is required"), nil)
		return
	}
	s.respondRun(w, func() error { return s.sess.Eval(r.Context(), req.Statements) })
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeBody(w, r, &req) || !requirePath(w, req) {
		return
	}
	s.respondRun(w, func() error { return s.sess.Read(r.Context(), req.Path) })
}

func (s *Server) readData(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if !decodeBody(w, r, &req) || !requirePath(w, req) {
		return
	}
	s.respondRun(w, func() error { return s.sess.ReadData(r.Context(), req.Path) })
}

func (s *Server) solve(w http.ResponseWriter, r *http.Request) {
	s.respondRun(w, func() error { return s.sess.Solve(r.Context()) })
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	s.respondRun(w, func() error { return s.sess.Reset(r.Context()) })
}

func (s *Server) respondRun(w http.ResponseWriter, fn func() error) {
	out, err := s.run(fn)
	if err != nil {
		writeError(w, statusOf(err), err, out)
		return
	}
	writeJSON(w, http.StatusOK, RunResponse{Output: out})
}

func (s *Server) getOption(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	v, ok, err := s.sess.Option(r.Context(), name)
	if err != nil {
		writeError(w, statusOf(err), err, nil)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("option %s is not defined", name), nil)
		return
	}
	writeJSON(w, http.StatusOK, OptionResponse{Name: name, Type: v.Type.String(), Value: v.Any()})
}

func (s *Server) setOption(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var req OptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	value := req.Value
	// JSON numbers decode as float64; whole numbers set integer options.
	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		value = int64(f)
	}
	if err := s.sess.SetOptionValue(r.Context(), name, value); err != nil {
		writeError(w, statusOf(err), err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) entities(w http.ResponseWriter, r *http.Request) {
	kind, err := engine.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err, nil)
		return
	}
	names, err := s.sess.Names(r.Context(), kind)
	if err != nil {
		writeError(w, statusOf(err), err, nil)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "names": names})
}

func (s *Server) value(w http.ResponseWriter, r *http.Request) {
	expr := r.URL.Query().Get("expr")
	if expr == "" {
		writeError(w, http.StatusBadRequest, errors.New("expr is required"), nil)
		return
	}
	v, err := s.sess.Value(r.Context(), expr)
	if err != nil {
		writeError(w, statusOf(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expr": expr, "value": v})
}

// getData returns the expressions given as repeated expr parameters, as
// JSON records or as CSV when the client accepts text/csv.
func (s *Server) getData(w http.ResponseWriter, r *http.Request) {
	exprs := r.URL.Query()["expr"]
	if len(exprs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("expr is required"), nil)
		return
	}
	f, err := s.sess.Data(r.Context(), exprs...)
	if err != nil {
		writeError(w, statusOf(err), err, nil)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/csv") {
		w.Header().Set("Content-Type", "text/csv")
		if err := f.WriteCSV(w); err != nil {
			s.logger.Error("failed to write csv", "error", err)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index_columns": f.IndexColumns(),
		"value_columns": f.ValueColumns(),
		"rows":          records(f),
	})
}

// records keeps values as engine.Value so that infinite bounds survive
// JSON encoding.
func records(f *frame.Frame) []map[string]engine.Value {
	cols := f.Columns()
	rows := f.Rows()
	out := make([]map[string]engine.Value, len(rows))
	for i, r := range rows {
		rec := make(map[string]engine.Value, len(cols))
		for j, v := range append(append([]engine.Value(nil), r.Index...), r.Values...) {
			rec[cols[j]] = v
		}
		out[i] = rec
	}
	return out
}

// setData assigns a CSV body. The index query parameter gives the number
// of leading index columns (default 1).
func (s *Server) setData(w http.ResponseWriter, r *http.Request) {
	indexCount := 1
	if v := r.URL.Query().Get("index"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid index %q", v), nil)
			return
		}
		indexCount = n
	}
	f, err := frame.ReadCSV(http.MaxBytesReader(w, r.Body, maxBody), indexCount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, nil)
		return
	}
	if err := s.sess.SetData(r.Context(), f); err != nil {
		writeError(w, statusOf(err), err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": f.NumRows()})
}

// events streams reload events as server-sent events.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"), nil)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)
	for {
		select {
		case <-r.Context().Done():
			return
		case path := <-ch:
			if _, err := fmt.Fprintf(w, "event: reload\ndata: %s\n\n", path); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func requirePath(w http.ResponseWriter, req PathRequest) bool {
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, errors.New("path is required"), nil)
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err), nil)
		return false
	}
	return true
}

// statusOf maps session and engine errors to HTTP status codes.
func statusOf(err error) int {
	var (
		notFound  *session.NotFoundError
		stale     *session.StaleReferenceError
		badName   *session.InvalidOptionNameError
		badType   *session.UnsupportedOptionTypeError
		reported  *session.EngineReportedError
		diag      *engine.Diagnostic
		unknown   *frame.UnknownColumnError
		duplicate *frame.DuplicateColumnError
		mismatch  *frame.IndexMismatchError
	)
	switch {
	case errors.Is(err, session.ErrEngineNotRunning):
		return http.StatusServiceUnavailable
	case errors.As(err, &stale):
		return http.StatusConflict
	case errors.As(err, &notFound), errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &badName), errors.As(err, &badType),
		errors.As(err, &unknown), errors.As(err, &duplicate), errors.As(err, &mismatch):
		return http.StatusBadRequest
	case errors.As(err, &reported), errors.As(err, &diag):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error, out []outputLine) {
	resp := ErrorResponse{Error: err.Error(), Output: out}
	var d *engine.Diagnostic
	if errors.As(err, &d) {
		resp.Diagnostic = d
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
