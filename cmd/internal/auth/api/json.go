package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// errorResponse is the body of every non-2xx reply.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var (
	errEmptyBody    = errors.New("api: request body is empty")
	errTrailingData = errors.New("api: unexpected data after JSON value")
)

// writeJSON sends v with status. Auth responses carry tokens, so nothing is cached.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, `{"error":{"code":"internal_error","message":"internal error"}}`, http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	var body errorResponse
	body.Error.Code = code
	body.Error.Message = msg
	writeJSON(w, status, body)
}

// decodeJSON reads exactly one JSON value of at most maxBytes into dst.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	dec.DisallowUnknownFields()

	switch err := dec.Decode(dst); {
	case errors.Is(err, io.EOF):
		return errEmptyBody
	case err != nil:
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}
