// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jhelvik/chronicle-mcp/internal/database"
	"github.com/jhelvik/chronicle-mcp/internal/faults"
	"github.com/jhelvik/chronicle-mcp/internal/jobs"
	"github.com/jhelvik/chronicle-mcp/internal/logger"
	"github.com/jhelvik/chronicle-mcp/internal/tools"
)

// HTTPServer exposes the pipeline over plain HTTP. The server binds to
// localhost by default and carries no authentication; it models one
// person's private data on their own machine.
type HTTPServer struct {
	tc  *tools.ToolContext
	log *logger.Logger
}

// NewHTTPServer creates the HTTP surface
func NewHTTPServer(tc *tools.ToolContext, log *logger.Logger) *HTTPServer {
	return &HTTPServer{tc: tc, log: log.With("component", "http")}
}

// RegisterRoutes registers all HTTP routes
func (h *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /entries", h.handleCreateEntry)
	mux.HandleFunc("POST /entries/reprocess", h.handleReprocess)
	mux.HandleFunc("POST /extract", h.handleExtract)
	mux.HandleFunc("POST /jobs/consolidation", h.handleConsolidation)
	mux.HandleFunc("POST /jobs/resonance", h.handleResonance)
	mux.HandleFunc("POST /jobs/report", h.handleReport)
	mux.HandleFunc("GET /biography", h.handleBiography)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

type createEntryRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Chat   bool   `json:"chat"`
}

func (h *HTTPServer) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}

	var entry *database.RawEntry
	var err error
	if req.Chat {
		entry, err = h.tc.Ingestor.ProcessChat(r.Context(), req.Text)
	} else {
		entry, err = h.tc.Ingestor.Ingest(r.Context(), req.Text, req.Source)
	}
	if err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": entry.ID})
}

type reprocessRequest struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

func (h *HTTPServer) handleReprocess(w http.ResponseWriter, r *http.Request) {
	var req reprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := h.tc.Ingestor.Reprocess(r.Context(), req.ID, req.Text); err != nil {
		h.writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": req.ID, "status": "reprocessed"})
}

type extractRequest struct {
	EntryID string `json:"entry_id"`
	Text    string `json:"text"`
}

// handleExtract queues extraction for an already-persisted entry. It is
// the recovery path when the post-ingest enrichment failed; the response
// does not wait for the extraction to finish.
func (h *HTTPServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.EntryID == "" {
		writeError(w, http.StatusBadRequest, "entry_id is required")
		return
	}
	var entry database.RawEntry
	if err := h.tc.DB.WithContext(r.Context()).Select("id").First(&entry, "id = ?", req.EntryID).Error; err != nil {
		writeError(w, http.StatusBadRequest, "entry "+req.EntryID+" not found")
		return
	}
	h.tc.Ingestor.ExtractInBackground(req.EntryID, req.Text)
	writeJSON(w, http.StatusAccepted, map[string]string{"entry_id": req.EntryID, "status": "queued"})
}

func (h *HTTPServer) handleConsolidation(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, jobs.JobConsolidation, func(w http.ResponseWriter) (string, error) {
		result := h.tc.Sweeper.Run(r.Context())
		writeJSON(w, http.StatusOK, result)
		return result.Summary(), nil
	})
}

func (h *HTTPServer) handleResonance(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, jobs.JobResonance, func(w http.ResponseWriter) (string, error) {
		result, err := h.tc.Detector.Run(r.Context())
		if err != nil {
			return "", err
		}
		writeJSON(w, http.StatusOK, result)
		return result.Summary(), nil
	})
}

func (h *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, jobs.JobWeeklyReport, func(w http.ResponseWriter) (string, error) {
		outcome, err := h.tc.Reports.Run(r.Context())
		if err != nil {
			return "", err
		}
		writeJSON(w, http.StatusOK, outcome)
		return outcome.Summary(), nil
	})
}

// runJob wraps a handler body in the audited job runner. The body writes
// its own success response; failures are written here.
func (h *HTTPServer) runJob(w http.ResponseWriter, r *http.Request, name string, body func(http.ResponseWriter) (string, error)) {
	responded := false
	err := h.tc.Jobs.Run(r.Context(), name, func(ctx context.Context) (string, error) {
		summary, err := body(w)
		if err == nil {
			responded = true
		}
		return summary, err
	})
	if err == jobs.ErrLeaseHeld {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
		return
	}
	if err != nil && !responded {
		h.writeFault(w, err)
	}
}

func (h *HTTPServer) handleBiography(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("refresh") == "true" {
		text, err := h.tc.Biography.Refresh(r.Context())
		if err != nil {
			h.writeFault(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"biography": text, "cached": false})
		return
	}

	text, valid, err := h.tc.Biography.Cached(r.Context())
	if err != nil {
		h.writeFault(w, err)
		return
	}
	if !valid {
		writeError(w, http.StatusNotFound, "no current biography; regenerate with ?refresh=true")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"biography": text, "cached": true})
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := database.Ping(h.tc.DB); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeFault maps the error taxonomy to HTTP statuses: bad input is the
// caller's fault, gateway trouble is upstream, everything else is ours.
func (h *HTTPServer) writeFault(w http.ResponseWriter, err error) {
	switch {
	case faults.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case faults.IsExternalService(err), faults.IsMalformedResult(err):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		h.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
