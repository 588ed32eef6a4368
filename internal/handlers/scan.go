package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"labtree/internal/contextutil"
	"labtree/internal/reconcile"
	"labtree/internal/report"
)

// ScanHandler handles HTTP requests that reconcile a project subtree.
type ScanHandler struct {
	notebook Notebook
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(nb Notebook) *ScanHandler {
	return &ScanHandler{notebook: nb}
}

// ScanRequest represents the HTTP request payload for a scan.
//
// swagger:model ScanRequest
type ScanRequest struct {
	// Ids from the project down to the directory to scan
	Stack []string `json:"stack"`

	// One of plain, produce or compare; empty means plain
	Mode string `json:"mode,omitempty"`
}

// ReportResponse is a scan or check report with its severity totals.
//
// swagger:model ReportResponse
type ReportResponse struct {
	*report.Report

	Errors   int                    `json:"errors"`
	Warnings int                    `json:"warnings"`
	Outcomes map[report.Outcome]int `json:"outcomes"`
}

func newReportResponse(rep *report.Report) ReportResponse {
	return ReportResponse{
		Report:   rep,
		Errors:   rep.Count(report.SeverityError),
		Warnings: rep.Count(report.SeverityWarning),
		Outcomes: rep.Outcomes(),
	}
}

// ServeHTTP handles HTTP requests for scans.
//
// swagger:route POST /api/v1/scan scan
//
// # Reconcile a subtree
//
// Walks the directory selected by stack and reconciles it with the database.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Scan report
//	  schema:
//	    "$ref": "#/definitions/ReportResponse"
//	'400':
//	  description: Invalid request
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'409':
//	  description: A scan of the same project is running
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *ScanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Stack) == 0 {
		writeError(w, http.StatusBadRequest, "Stack is required")
		return
	}

	nav, err := h.notebook.Navigate(ctx, req.Stack...)
	if err != nil {
		logger.WarnContext(ctx, "navigation failed", "stack", req.Stack, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	start := time.Now()
	rep, err := h.notebook.Scan(ctx, nav, reconcile.Mode(req.Mode))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			logger.ErrorContext(ctx, "scan failed", "root", nav.Root(), "error", err)
			writeError(w, status, "Scan failed")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	logger.InfoContext(ctx, "scan completed",
		"root", nav.Root(),
		"dir", nav.Dir,
		"mode", req.Mode,
		"errors", rep.Count(report.SeverityError),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if err := writeJSON(w, http.StatusOK, newReportResponse(rep)); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// HistoryHandler lists recent scans and checks.
type HistoryHandler struct {
	notebook Notebook
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(nb Notebook) *HistoryHandler {
	return &HistoryHandler{notebook: nb}
}

// ScanSummary is one entry of the scan history.
//
// swagger:model ScanSummary
type ScanSummary struct {
	ID        int    `json:"id"`
	Root      string `json:"root,omitempty"`
	Mode      string `json:"mode"`
	Paths     int    `json:"paths"`
	Errors    int    `json:"errors"`
	Warnings  int    `json:"warnings"`
	CreatedAt string `json:"created_at"`
}

// ServeHTTP handles HTTP requests for the scan history.
//
// swagger:route GET /api/v1/scans scanHistory
//
// # List recent scans
//
// Optional query parameters: root (project id) and limit (default 20).
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Recent scans, newest first
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodGet {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	scans, err := h.notebook.History(ctx, r.URL.Query().Get("root"), limit)
	if err != nil {
		logger.ErrorContext(ctx, "failed to list scans", "error", err)
		writeError(w, statusFor(err), "Failed to list scans")
		return
	}

	out := make([]ScanSummary, 0, len(scans))
	for _, s := range scans {
		out = append(out, ScanSummary{
			ID:        s.ID,
			Root:      s.RootID,
			Mode:      s.Mode,
			Paths:     s.Paths,
			Errors:    s.Errors,
			Warnings:  s.Warnings,
			CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeJSON(w, http.StatusOK, out); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// CheckHandler audits the whole database.
type CheckHandler struct {
	notebook Notebook
	timeout  time.Duration
}

// NewCheckHandler creates a new CheckHandler.
func NewCheckHandler(nb Notebook) *CheckHandler {
	return &CheckHandler{notebook: nb, timeout: 5 * time.Minute}
}

// ServeHTTP handles HTTP requests for consistency checks.
//
// swagger:route POST /api/v1/check check
//
// # Check database consistency
//
// Runs the consistency checker over every record.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Check report
//	  schema:
//	    "$ref": "#/definitions/ReportResponse"
func (h *CheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if r.Method != http.MethodPost {
		logger.WarnContext(ctx, "method not allowed", "method", r.Method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	rep, err := h.notebook.Check(checkCtx)
	if err != nil {
		logger.ErrorContext(ctx, "check failed", "error", err)
		writeError(w, statusFor(err), "Check failed")
		return
	}
	if err := writeJSON(w, http.StatusOK, newReportResponse(rep)); err != nil {
		logger.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}
