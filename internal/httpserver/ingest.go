package httpserver

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/al-bashkir/securelog/internal/logsanitize"
	"github.com/al-bashkir/securelog/internal/wire"
)

// IngestResponse is returned for an accepted batch
type IngestResponse struct {
	Accepted  int    `json:"accepted"`
	RequestID string `json:"request_id"`
}

// requestError is a client error with its HTTP status
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// handleEvents accepts one event or a batch
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	principal, err := s.auth.Authenticate(r)
	if err != nil {
		slog.Warn("ingest authentication failed",
			"request_id", requestID,
			"ip", logsanitize.Sanitize(extractIP(r)),
			"error", logsanitize.Sanitize(err.Error()),
		)
		if s.auth.Name() == "oidc" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="securelog"`)
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
			return
		}
	}

	body, err := readBody(w, r, s.cfg.Ingest.MaxBodyBytes)
	if err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			writeError(w, reqErr.status, reqErr.msg)
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	events, err := wire.ParseEvents(body)
	if err != nil {
		slog.Debug("rejected events", "request_id", requestID, "error", logsanitize.Sanitize(err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted, err := s.handler(r.Context(), events)
	if err != nil {
		slog.Error("failed to handle events",
			"request_id", requestID,
			"accepted", accepted,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to store events")
		return
	}

	slog.Debug("events accepted",
		"request_id", requestID,
		"principal", logsanitize.Sanitize(principal),
		"count", accepted,
		"transport", "http",
	)

	writeJSON(w, http.StatusAccepted, IngestResponse{Accepted: accepted, RequestID: requestID})
}

// readBody decodes the request body according to Content-Encoding. Both
// the encoded and the decoded size are capped at limit.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	body := http.MaxBytesReader(w, r.Body, limit)

	var rd io.Reader
	switch enc := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		rd = body
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(body)
		if err != nil {
			return nil, &requestError{http.StatusBadRequest, "invalid gzip body"}
		}
		defer func() { _ = gz.Close() }()
		rd = gz
	case "zstd":
		zr, err := zstd.NewReader(body,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(limit)+1),
		)
		if err != nil {
			return nil, &requestError{http.StatusBadRequest, "invalid zstd body"}
		}
		defer zr.Close()
		rd = zr
	case "br":
		rd = brotli.NewReader(body)
	default:
		return nil, &requestError{http.StatusUnsupportedMediaType, "unsupported content encoding"}
	}

	data, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return nil, &requestError{http.StatusBadRequest, "failed to decode body"}
	}
	if int64(len(data)) > limit {
		return nil, &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
	}
	return data, nil
}
