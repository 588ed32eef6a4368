package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"labtree/internal/hierarchy"
	"labtree/internal/notebook"
	"labtree/internal/reconcile"
	"labtree/internal/record"
	"labtree/internal/report"
	"labtree/internal/storage"
)

// Notebook is the application service behind the HTTP handlers.
// It is defined from the handlers' perspective (consumer-first).
type Notebook interface {
	Navigate(ctx context.Context, ids ...string) (hierarchy.NavigationContext, error)
	Scan(ctx context.Context, nav hierarchy.NavigationContext, mode reconcile.Mode) (*report.Report, error)
	Check(ctx context.Context) (*report.Report, error)
	History(ctx context.Context, rootID string, limit int) ([]storage.Scan, error)
	Doc(ctx context.Context, id string) (*record.Record, error)
	Add(ctx context.Context, nav hierarchy.NavigationContext, kind record.Kind, raw map[string]any) (*record.Record, error)
	Children(ctx context.Context, nav hierarchy.NavigationContext) ([]storage.ViewRow, error)
	Fingerprints(ctx context.Context) ([]storage.ViewRow, error)
}

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// statusFor maps notebook errors to HTTP status codes.
func statusFor(err error) int {
	var verr *record.ValidationError
	switch {
	case errors.Is(err, notebook.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, notebook.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, notebook.ErrInvalidInput),
		errors.Is(err, reconcile.ErrNoRoot),
		errors.Is(err, reconcile.ErrUnknownMode),
		errors.Is(err, hierarchy.ErrAtTop),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
