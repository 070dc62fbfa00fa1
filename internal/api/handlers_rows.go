package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/dgallion1/treerows/internal/rowserver"
	"github.com/dgallion1/treerows/internal/rowtree"
)

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready.
const statusClientClosedRequest = 499

const maxRowsRequestBytes = 1 << 20

// rowJSON is a row as sent to the grid, with the expansion hint added.
type rowJSON struct {
	rowtree.RowView
	OpenByDefault bool `json:"openByDefault,omitempty"`
}

type rowsResponse struct {
	RowData  []rowJSON `json:"rowData"`
	RowCount *int      `json:"rowCount,omitempty"`
}

// handlePostRows accepts the grid's server-side request body. Fields other
// than groupKeys, startRow and endRow are ignored.
func (s *Server) handlePostRows(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRowsRequestBytes)

	var req rowserver.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.serveRows(w, r, req)
}

// handleGetRows serves the same query from URL parameters. The group path is
// given either as repeated key parameters or as a single slash-separated path.
func (s *Server) handleGetRows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var req rowserver.Request
	if keys, ok := q["key"]; ok {
		req.GroupKeys = rowtree.GroupPath(keys)
	} else {
		req.GroupKeys = splitPath(q.Get("path"))
	}

	var err error
	if req.StartRow, err = optionalInt(q, "startRow"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.EndRow, err = optionalInt(q, "endRow"); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.serveRows(w, r, req)
}

func (s *Server) serveRows(w http.ResponseWriter, r *http.Request, req rowserver.Request) {
	if req.Windowed() && (*req.StartRow < 0 || *req.EndRow < 0) {
		jsonError(w, "startRow and endRow must not be negative", http.StatusBadRequest)
		return
	}

	resp, err := s.rows.GetRows(r.Context(), req)
	if err != nil {
		s.writeRowsError(w, r, err)
		return
	}

	level := len(req.GroupKeys)
	open := rowserver.OpenByDefault(level, s.cfg.OpenLevels)
	out := rowsResponse{
		RowData:  make([]rowJSON, len(resp.Rows)),
		RowCount: resp.RowCount,
	}
	for i, row := range resp.Rows {
		out.RowData[i] = rowJSON{
			RowView:       row,
			OpenByDefault: open && rowserver.IsServerSideGroup(row),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeRowsError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rowserver.ErrNotReady):
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, rowserver.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.DeadlineExceeded):
		jsonError(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		jsonError(w, err.Error(), statusClientClosedRequest)
	default:
		s.log.Error("get rows failed", "path", r.URL.Path, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func splitPath(path string) rowtree.GroupPath {
	path = strings.Trim(path, "/")
	if path == "" {
		return rowtree.GroupPath{}
	}
	return rowtree.GroupPath(strings.Split(path, "/"))
}

func optionalInt(q map[string][]string, name string) (*int, error) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", name)
	}
	return &n, nil
}
