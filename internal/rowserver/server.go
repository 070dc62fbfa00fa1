package rowserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgallion1/treerows/internal/rowtree"
)

var (
	// ErrNotReady is returned when rows are requested before the tree loaded.
	ErrNotReady = errors.New("tree not loaded")
	// ErrNotFound is returned when a group path key matches no sibling.
	ErrNotFound = errors.New("group key not found")
	// ErrAlreadyLoaded is returned by a second call to Load.
	ErrAlreadyLoaded = errors.New("tree already loaded")
)

// DefaultDelay is the simulated network latency applied to every response.
const DefaultDelay = 200 * time.Millisecond

// Request asks for the rows under GroupKeys. When both StartRow and EndRow
// are set only that window of rows is returned.
type Request struct {
	GroupKeys rowtree.GroupPath `json:"groupKeys"`
	StartRow  *int              `json:"startRow,omitempty"`
	EndRow    *int              `json:"endRow,omitempty"`
}

// Windowed reports whether the request asks for a sub-range.
func (r Request) Windowed() bool {
	return r.StartRow != nil && r.EndRow != nil
}

// Response carries the rows for a Request. RowCount is set only for
// windowed requests and holds the size of the full child set.
type Response struct {
	Rows     []rowtree.RowView `json:"rowData"`
	RowCount *int              `json:"rowCount,omitempty"`
}

// Result is the outcome delivered by GetRowsAsync.
type Result struct {
	Response Response
	Err      error
}

// Outcome labels passed to observers.
const (
	OutcomeOK       = "ok"
	OutcomeNotReady = "not_ready"
	OutcomeNotFound = "not_found"
	OutcomeCanceled = "canceled"
)

// Observer is notified once per GetRows call.
type Observer interface {
	ObserveGetRows(outcome string, rows int, elapsed time.Duration)
}

// Server answers row queries against a tree that is loaded exactly once.
type Server struct {
	tree     atomic.Pointer[rowtree.Tree]
	delay    time.Duration
	log      *slog.Logger
	observer Observer
}

// Option configures a Server.
type Option func(*Server)

// WithDelay sets the simulated latency. Negative values are treated as zero.
func WithDelay(d time.Duration) Option {
	return func(s *Server) {
		if d < 0 {
			d = 0
		}
		s.delay = d
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(s *Server) { s.observer = o }
}

// New returns a server with no tree loaded. GetRows fails with ErrNotReady
// until Load is called.
func New(opts ...Option) *Server {
	s := &Server{
		delay: DefaultDelay,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewLoaded returns a server that already holds tree.
func NewLoaded(tree *rowtree.Tree, opts ...Option) (*Server, error) {
	s := New(opts...)
	if err := s.Load(tree); err != nil {
		return nil, err
	}
	return s, nil
}

// Load installs the tree. It may succeed only once.
func (s *Server) Load(tree *rowtree.Tree) error {
	if tree == nil {
		return fmt.Errorf("load: nil tree")
	}
	if !s.tree.CompareAndSwap(nil, tree) {
		return ErrAlreadyLoaded
	}
	s.log.Info("tree loaded", "roots", tree.Len(), "nodes", tree.Count(), "depth", tree.Depth())
	return nil
}

// Ready reports whether the tree has been loaded.
func (s *Server) Ready() bool {
	return s.tree.Load() != nil
}

// Tree returns the loaded tree, or nil before Load.
func (s *Server) Tree() *rowtree.Tree {
	return s.tree.Load()
}

// Delay returns the configured simulated latency.
func (s *Server) Delay() time.Duration {
	return s.delay
}

// GetRows resolves req and returns the result once the simulated delay has
// elapsed. Lookup failures are returned immediately. If ctx ends during the
// delay, ctx.Err() is returned.
func (s *Server) GetRows(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	log := s.log.With("group_keys", []string(req.GroupKeys))
	if req.Windowed() {
		log = log.With("start_row", *req.StartRow, "end_row", *req.EndRow)
	}
	log.Debug("get rows")

	resp, err := s.query(req)
	if err != nil {
		log.Debug("get rows failed", "error", err)
		s.observe(outcomeOf(err), 0, time.Since(start))
		return Response{}, err
	}

	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		s.observe(OutcomeCanceled, 0, time.Since(start))
		return Response{}, ctx.Err()
	case <-timer.C:
	}

	if resp.RowCount != nil {
		log = log.With("row_count", *resp.RowCount)
	}
	log.Debug("get rows result", "rows", len(resp.Rows))
	s.observe(OutcomeOK, len(resp.Rows), time.Since(start))
	return resp, nil
}

// GetRowsAsync runs GetRows in its own goroutine and delivers the outcome on
// the returned channel. The channel is buffered so an abandoned result never
// blocks the goroutine.
func (s *Server) GetRowsAsync(ctx context.Context, req Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		resp, err := s.GetRows(ctx, req)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}

func (s *Server) query(req Request) (Response, error) {
	tree := s.tree.Load()
	if tree == nil {
		return Response{}, ErrNotReady
	}
	all, err := ResolveChildren(tree.Roots(), req.GroupKeys)
	if err != nil {
		return Response{}, err
	}
	if !req.Windowed() {
		return Response{Rows: all}, nil
	}
	total := len(all)
	return Response{
		Rows:     window(all, *req.StartRow, *req.EndRow),
		RowCount: &total,
	}, nil
}

// window slices rows to [start:end], clamping both bounds into range.
func window(rows []rowtree.RowView, start, end int) []rowtree.RowView {
	n := len(rows)
	start = min(max(start, 0), n)
	end = min(max(end, start), n)
	return rows[start:end:end]
}

func (s *Server) observe(outcome string, rows int, elapsed time.Duration) {
	if s.observer != nil {
		s.observer.ObserveGetRows(outcome, rows, elapsed)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrNotReady):
		return OutcomeNotReady
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeCanceled
	}
}
