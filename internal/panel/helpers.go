package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rendis/timeline/internal/logging"
	"github.com/rendis/timeline/pkg/schema"
)

// timelineContext tags the request context with the {id} path value so
// records logged downstream carry the timeline id.
func timelineContext(r *http.Request) context.Context {
	return logging.WithTimelineID(r.Context(), r.PathValue("id"))
}

// maxBodyBytes caps request bodies; timeline documents are small.
const maxBodyBytes = 4 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorBody is the JSON shape of a failed request.
type errorBody struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// writeTimelineError maps err to a status code and writes it.
func writeTimelineError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Code: schema.CodeOf(err)}
	var te *schema.TimelineError
	if errors.As(err, &te) {
		body.Error = te.Message
		body.NodeID = te.NodeID
		body.Details = te.Details
	}
	writeJSON(w, statusFor(err), body)
}

// statusFor returns the HTTP status for an error code.
func statusFor(err error) int {
	switch schema.CodeOf(err) {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition:
		return http.StatusConflict
	case schema.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readBody reads a bounded request body. An empty body is allowed.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read body: %v", err)
	}
	return data, nil
}

// decodeBody unmarshals an optional JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return schema.NewError(schema.ErrCodeValidation, fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// queryInt extracts an integer query param with a default value.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
