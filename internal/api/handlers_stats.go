package api

import (
	"net/http"

	"github.com/dgallion1/treerows/internal/rowserver"
)

func (s *Server) handleTreeStats(w http.ResponseWriter, r *http.Request) {
	tree := s.rows.Tree()
	if tree == nil {
		jsonError(w, rowserver.ErrNotReady.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"roots": tree.Len(),
		"nodes": tree.Count(),
		"depth": tree.Depth(),
	})
}

func (s *Server) handleLatencyStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"delay_ms": s.rows.Delay().Milliseconds(),
		"stats":    s.latency.Snapshot(),
	})
}
