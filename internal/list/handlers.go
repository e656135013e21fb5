package list

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pvieira/scanlist/internal/scanner"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v with the given status
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError encodes an error body with the given status
func writeJSONError(w http.ResponseWriter, status int, message string) {
	setCORSHeaders(w)
	writeJSON(w, status, map[string]string{"error": message})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleGetList returns the current items and their running total
func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary()
	if err != nil {
		slog.Error("Error loading list", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleConfirmItem validates the confirmation form and appends the item
func (s *Server) handleConfirmItem(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := s.service.Confirm(req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSONError(w, http.StatusBadRequest, verr.Error())
			return
		}
		slog.Error("Error confirming item", "code", req.Code, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Could not save the item")
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// handleRemoveItem removes one item by position
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		corsError(w, "Invalid index", http.StatusBadRequest)
		return
	}

	// Out-of-bounds indexes are a silent no-op inside RemoveAt
	if err := s.service.RemoveAt(index); err != nil {
		slog.Error("Error removing item", "index", index, "error", err)
		corsError(w, "Error removing item", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClearList empties the list. The UI asks for confirmation first.
func (s *Server) handleClearList(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearAll(); err != nil {
		slog.Error("Error clearing list", "error", err)
		corsError(w, "Error clearing list", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// scanStateResponse reports the controller state to the UI
type scanStateResponse struct {
	State   string `json:"state"`
	Session uint64 `json:"session"`
}

// handleStartScan begins a scan session
func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Start(); err != nil {
		var devErr *scanner.DeviceUnavailableError
		if errors.As(err, &devErr) {
			writeJSONError(w, http.StatusServiceUnavailable, devErr.Error())
			return
		}
		slog.Error("Error starting scan", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "Could not start the scanner")
		return
	}

	writeJSON(w, http.StatusCreated, scanStateResponse{
		State:   s.controller.State().String(),
		Session: s.controller.Session(),
	})
}

// handleCancelScan aborts the scan session without yielding a code
func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	s.controller.Cancel()
	writeJSON(w, http.StatusOK, scanStateResponse{
		State:   s.controller.State().String(),
		Session: s.controller.Session(),
	})
}

// handleScanState reports the current session state
func (s *Server) handleScanState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scanStateResponse{
		State:   s.controller.State().String(),
		Session: s.controller.Session(),
	})
}

// detectionRequest is one raw read relayed by the page
type detectionRequest struct {
	Code    string `json:"code"`
	Session uint64 `json:"session,omitempty"`
}

// detectionResponse tells the page whether the debounce accepted the code
type detectionResponse struct {
	Status string `json:"status"` // pending | accepted | stale
	Code   string `json:"code,omitempty"`
}

// handleDetection feeds one raw detection through the debounce. A frame
// from a superseded session is reported stale so the page stops its feed.
func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	var req detectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Session != 0 && req.Session != s.controller.Session() {
		writeJSON(w, http.StatusOK, detectionResponse{Status: "stale"})
		return
	}

	code, accepted := s.controller.HandleDetection(req.Code)
	if !accepted {
		writeJSON(w, http.StatusOK, detectionResponse{Status: "pending"})
		return
	}

	writeJSON(w, http.StatusOK, detectionResponse{Status: "accepted", Code: code})
}

// handleGetProduct resolves a code into a confirmation seed
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		corsError(w, "Product code required", http.StatusBadRequest)
		return
	}

	seed, err := s.service.Seed(r.Context(), code)
	if err != nil {
		slog.Error("Error building confirmation seed", "code", code, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, seed)
}

// handleManualSeed returns the manual-entry confirmation seed
func (s *Server) handleManualSeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ManualSeed())
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
