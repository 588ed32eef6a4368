package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"labtree/internal/contextutil"
	"labtree/internal/record"
	"labtree/internal/storage"
)

// DocHandler returns a single record by id.
type DocHandler struct {
	notebook Notebook
}

// NewDocHandler creates a new DocHandler.
func NewDocHandler(nb Notebook) *DocHandler {
	return &DocHandler{notebook: nb}
}

// ServeHTTP handles HTTP requests for one record.
//
// swagger:route GET /api/v1/docs/{id} getDoc
//
// # Get a record
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: The record
//	'404':
//	  description: No record with this id
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.notebook.Doc(ctx, id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.ErrorContext(ctx, "failed to load record", "doc_id", id, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusOK, doc); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// CreateDocHandler creates hierarchy and leaf records.
type CreateDocHandler struct {
	notebook Notebook
}

// NewCreateDocHandler creates a new CreateDocHandler.
func NewCreateDocHandler(nb Notebook) *CreateDocHandler {
	return &CreateDocHandler{notebook: nb}
}

// CreateDocRequest represents the HTTP request payload for a new record.
//
// swagger:model CreateDocRequest
type CreateDocRequest struct {
	// Ids of the parent chain; empty for a new project
	Stack []string `json:"stack"`

	// Record kind: project, step, task, measurement, sample, procedure or custom
	Type string `json:"type"`

	// Raw field values, name included
	Fields map[string]any `json:"fields"`
}

// ServeHTTP handles HTTP requests that create records.
//
// swagger:route POST /api/v1/docs createDoc
//
// # Create a record
//
// Projects, steps and tasks get a directory and a marker file.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'201':
//	  description: The stored record
//	'400':
//	  description: Invalid record
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *CreateDocHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req CreateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	kind := record.Kind(strings.TrimSpace(req.Type))
	if kind == "" {
		writeError(w, http.StatusBadRequest, "Type is required")
		return
	}

	nav, err := h.notebook.Navigate(ctx, req.Stack...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	doc, err := h.notebook.Add(ctx, nav, kind, req.Fields)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.ErrorContext(ctx, "failed to create record", "type", req.Type, "error", err)
			writeError(w, status, "Failed to create record")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	if err := writeJSON(w, http.StatusCreated, doc); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// ChildrenHandler lists the records placed directly below a stack.
type ChildrenHandler struct {
	notebook Notebook
}

// NewChildrenHandler creates a new ChildrenHandler.
func NewChildrenHandler(nb Notebook) *ChildrenHandler {
	return &ChildrenHandler{notebook: nb}
}

// ServeHTTP handles HTTP requests for the hierarchy listing.
//
// swagger:route GET /api/v1/hierarchy listChildren
//
// # List children
//
// The stack is given as repeated stack query parameters; none lists projects.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: View rows of the children
func (h *ChildrenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	nav, err := h.notebook.Navigate(ctx, r.URL.Query()["stack"]...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	rows, err := h.notebook.Children(ctx, nav)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list children", "stack", nav.Stack, "error", err)
		writeError(w, statusFor(err), "Failed to list children")
		return
	}
	writeRows(w, r, rows)
}

// FingerprintsHandler lists every content fingerprint and its record.
type FingerprintsHandler struct {
	notebook Notebook
}

// NewFingerprintsHandler creates a new FingerprintsHandler.
func NewFingerprintsHandler(nb Notebook) *FingerprintsHandler {
	return &FingerprintsHandler{notebook: nb}
}

// ServeHTTP handles HTTP requests for the fingerprint listing.
//
// swagger:route GET /api/v1/fingerprints listFingerprints
//
// # List content fingerprints
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: View rows keyed by fingerprint
func (h *FingerprintsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rows, err := h.notebook.Fingerprints(ctx)
	if err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list fingerprints", "error", err)
		writeError(w, statusFor(err), "Failed to list fingerprints")
		return
	}
	writeRows(w, r, rows)
}

func writeRows(w http.ResponseWriter, r *http.Request, rows []storage.ViewRow) {
	if rows == nil {
		rows = []storage.ViewRow{}
	}
	if err := writeJSON(w, http.StatusOK, rows); err != nil {
		ctx := r.Context()
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
