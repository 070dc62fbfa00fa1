package rowserver

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/treerows/internal/rowtree"
)

func intPtr(n int) *int { return &n }

// orgTree builds:
//
//	E1 Alice
//	  E2 Bob
//	  E3 Carol
//	    E4 Dan
//	    E5 Erin
//	  E6 Frank
//	E7 Grace
func orgTree() *rowtree.Tree {
	return rowtree.New([]*rowtree.Record{
		{ID: "E1", Name: "Alice", EmploymentType: "Permanent", JobTitle: "CEO", Children: []*rowtree.Record{
			{ID: "E2", Name: "Bob", EmploymentType: "Permanent", JobTitle: "CTO"},
			{ID: "E3", Name: "Carol", EmploymentType: "Contract", JobTitle: "VP", Children: []*rowtree.Record{
				{ID: "E4", Name: "Dan", EmploymentType: "Contract", JobTitle: "Engineer"},
				{ID: "E5", Name: "Erin", EmploymentType: "Permanent", JobTitle: "Engineer"},
			}},
			{ID: "E6", Name: "Frank", EmploymentType: "Permanent", JobTitle: "CFO"},
		}},
		{ID: "E7", Name: "Grace", EmploymentType: "Permanent", JobTitle: "Advisor"},
	})
}

func newTestServer(t *testing.T, delay time.Duration) *Server {
	t.Helper()
	s, err := NewLoaded(orgTree(), WithDelay(delay))
	if err != nil {
		t.Fatalf("NewLoaded: %v", err)
	}
	return s
}

func ids(rows []rowtree.RowView) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestResolveChildren_PreservesOrder(t *testing.T) {
	roots := orgTree().Roots()
	tests := []struct {
		path rowtree.GroupPath
		want []string
	}{
		{nil, []string{"E1", "E7"}},
		{rowtree.GroupPath{}, []string{"E1", "E7"}},
		{rowtree.GroupPath{"E1"}, []string{"E2", "E3", "E6"}},
		{rowtree.GroupPath{"E1", "E3"}, []string{"E4", "E5"}},
		{rowtree.GroupPath{"E7"}, []string{}},
		{rowtree.GroupPath{"E1", "E3", "E4"}, []string{}},
	}
	for _, tt := range tests {
		rows, err := ResolveChildren(roots, tt.path)
		if err != nil {
			t.Fatalf("path %v: unexpected error %v", tt.path, err)
		}
		if got := ids(rows); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("path %v: expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestResolveChildren_IsGroupMatchesChildren(t *testing.T) {
	roots := orgTree().Roots()
	rows, err := ResolveChildren(roots, rowtree.GroupPath{"E1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]bool{"E2": false, "E3": true, "E6": false}
	for _, r := range rows {
		if r.IsGroup != want[r.ID] {
			t.Errorf("row %s: expected IsGroup=%v, got %v", r.ID, want[r.ID], r.IsGroup)
		}
	}
}

func TestResolveChildren_UnknownKey(t *testing.T) {
	roots := orgTree().Roots()
	for _, path := range []rowtree.GroupPath{
		{"does-not-exist"},
		{"E1", "E4"}, // E4 is a grandchild of E1, not a child
		{"E7", "E1"},
	} {
		_, err := ResolveChildren(roots, path)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("path %v: expected ErrNotFound, got %v", path, err)
		}
	}
}

func TestResolveChildren_SameIDUnderDifferentParents(t *testing.T) {
	roots := []*rowtree.Record{
		{ID: "A", Children: []*rowtree.Record{{ID: "X", Name: "under A"}}},
		{ID: "B", Children: []*rowtree.Record{{ID: "X", Name: "under B"}}},
	}
	rows, err := ResolveChildren(roots, rowtree.GroupPath{"B"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != "under B" {
		t.Errorf("expected the X under B, got %+v", rows)
	}
}

func TestGetRows_AliceBobScenario(t *testing.T) {
	tree := rowtree.New([]*rowtree.Record{
		{ID: "E1", Name: "Alice", Children: []*rowtree.Record{{ID: "E2", Name: "Bob"}}},
	})
	s, err := NewLoaded(tree, WithDelay(0))
	if err != nil {
		t.Fatalf("NewLoaded: %v", err)
	}
	ctx := context.Background()

	resp, err := s.GetRows(ctx, Request{GroupKeys: rowtree.GroupPath{}})
	if err != nil {
		t.Fatalf("top level: %v", err)
	}
	want := []rowtree.RowView{{IsGroup: true, ID: "E1", Name: "Alice"}}
	if !reflect.DeepEqual(resp.Rows, want) {
		t.Errorf("top level: expected %+v, got %+v", want, resp.Rows)
	}
	if resp.RowCount != nil {
		t.Errorf("expected no row count in full mode, got %d", *resp.RowCount)
	}

	resp, err = s.GetRows(ctx, Request{GroupKeys: rowtree.GroupPath{"E1"}})
	if err != nil {
		t.Fatalf("E1: %v", err)
	}
	want = []rowtree.RowView{{IsGroup: false, ID: "E2", Name: "Bob"}}
	if !reflect.DeepEqual(resp.Rows, want) {
		t.Errorf("E1: expected %+v, got %+v", want, resp.Rows)
	}
}

func TestGetRows_UnknownKey(t *testing.T) {
	s := newTestServer(t, 0)
	_, err := s.GetRows(context.Background(), Request{GroupKeys: rowtree.GroupPath{"does-not-exist"}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRows_Window(t *testing.T) {
	s := newTestServer(t, 0)
	path := rowtree.GroupPath{"E1"}
	all := []string{"E2", "E3", "E6"}

	tests := []struct {
		name       string
		start, end int
		want       []string
	}{
		{"full range", 0, 3, all},
		{"prefix", 0, 2, all[:2]},
		{"middle", 1, 2, all[1:2]},
		{"empty at start", 0, 0, []string{}},
		{"empty in middle", 2, 2, []string{}},
		{"end past total", 1, 100, all[1:]},
		{"start past total", 5, 10, []string{}},
		{"end before start", 2, 1, []string{}},
		{"negative start", -3, 1, all[:1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := s.GetRows(context.Background(), Request{
				GroupKeys: path,
				StartRow:  intPtr(tt.start),
				EndRow:    intPtr(tt.end),
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := ids(resp.Rows); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
			if resp.RowCount == nil || *resp.RowCount != len(all) {
				t.Errorf("expected row count %d, got %v", len(all), resp.RowCount)
			}
		})
	}
}

func TestGetRows_WindowLaw(t *testing.T) {
	s := newTestServer(t, 0)
	roots := s.Tree().Roots()
	for _, path := range []rowtree.GroupPath{{}, {"E1"}, {"E1", "E3"}, {"E7"}} {
		all, err := ResolveChildren(roots, path)
		if err != nil {
			t.Fatalf("resolve %v: %v", path, err)
		}
		for start := 0; start <= len(all); start++ {
			for end := start; end <= len(all); end++ {
				resp, err := s.GetRows(context.Background(), Request{GroupKeys: path, StartRow: intPtr(start), EndRow: intPtr(end)})
				if err != nil {
					t.Fatalf("path %v [%d:%d]: %v", path, start, end, err)
				}
				if !reflect.DeepEqual(resp.Rows, all[start:end]) {
					t.Errorf("path %v [%d:%d]: expected %v, got %v", path, start, end, ids(all[start:end]), ids(resp.Rows))
				}
				if *resp.RowCount != len(all) {
					t.Errorf("path %v [%d:%d]: expected count %d, got %d", path, start, end, len(all), *resp.RowCount)
				}
			}
		}
	}
}

func TestGetRows_OnlyOneBoundIsFullMode(t *testing.T) {
	s := newTestServer(t, 0)
	resp, err := s.GetRows(context.Background(), Request{GroupKeys: rowtree.GroupPath{"E1"}, StartRow: intPtr(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Rows) != 3 {
		t.Errorf("expected all 3 rows, got %d", len(resp.Rows))
	}
	if resp.RowCount != nil {
		t.Errorf("expected no row count, got %d", *resp.RowCount)
	}
}

func TestGetRows_Idempotent(t *testing.T) {
	s := newTestServer(t, 0)
	req := Request{GroupKeys: rowtree.GroupPath{"E1", "E3"}, StartRow: intPtr(0), EndRow: intPtr(1)}
	first, err := s.GetRows(context.Background(), req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := s.GetRows(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("expected identical responses, got %+v and %+v", first, second)
	}
}

func TestGetRows_NotReady(t *testing.T) {
	s := New(WithDelay(time.Hour))
	start := time.Now()
	_, err := s.GetRows(context.Background(), Request{})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("expected NotReady to fail without waiting for the delay")
	}
}

func TestGetRows_WaitsForDelay(t *testing.T) {
	const delay = 50 * time.Millisecond
	s := newTestServer(t, delay)
	start := time.Now()
	if _, err := s.GetRows(context.Background(), Request{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("expected at least %s, returned after %s", delay, elapsed)
	}
}

func TestGetRows_ContextCanceled(t *testing.T) {
	s := newTestServer(t, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := s.GetRows(ctx, Request{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGetRowsAsync_ConcurrentCallsIndependent(t *testing.T) {
	const delay = 50 * time.Millisecond
	s := newTestServer(t, delay)
	paths := []rowtree.GroupPath{{}, {"E1"}, {"E1", "E3"}, {"E7"}, {"missing"}}

	start := time.Now()
	chans := make([]<-chan Result, len(paths))
	for i, p := range paths {
		chans[i] = s.GetRowsAsync(context.Background(), Request{GroupKeys: p})
	}
	for i, ch := range chans {
		res := <-ch
		if len(paths[i]) == 1 && paths[i][0] == "missing" {
			if !errors.Is(res.Err, ErrNotFound) {
				t.Errorf("path %v: expected ErrNotFound, got %v", paths[i], res.Err)
			}
			continue
		}
		if res.Err != nil {
			t.Errorf("path %v: unexpected error %v", paths[i], res.Err)
		}
	}
	// The calls overlap, so the total should be far below len(paths)*delay.
	if elapsed := time.Since(start); elapsed > time.Duration(len(paths)-1)*delay {
		t.Errorf("expected concurrent completion, took %s", elapsed)
	}
}

func TestLoad_OneWay(t *testing.T) {
	s := New(WithDelay(0))
	if s.Ready() {
		t.Fatal("expected new server to be unloaded")
	}
	if err := s.Load(orgTree()); err != nil {
		t.Fatalf("first load: %v", err)
	}
	if !s.Ready() {
		t.Fatal("expected server to be ready after load")
	}
	if err := s.Load(rowtree.New(nil)); !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("expected ErrAlreadyLoaded, got %v", err)
	}
	if s.Tree().Len() != 2 {
		t.Errorf("expected original tree to remain, got %d roots", s.Tree().Len())
	}
}

func TestLoad_NilTree(t *testing.T) {
	s := New()
	if err := s.Load(nil); err == nil {
		t.Fatal("expected error loading nil tree")
	}
	if s.Ready() {
		t.Error("expected server to stay unloaded")
	}
}

func TestLoad_Concurrent(t *testing.T) {
	s := New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Load(orgTree()); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Errorf("expected exactly one successful load, got %d", success)
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	rows     []int
}

func (o *recordingObserver) ObserveGetRows(outcome string, rows int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
	o.rows = append(o.rows, rows)
}

func TestGetRows_NotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	s := New(WithDelay(0), WithObserver(obs))
	ctx := context.Background()

	s.GetRows(ctx, Request{})
	s.Load(orgTree())
	s.GetRows(ctx, Request{GroupKeys: rowtree.GroupPath{"E1"}})
	s.GetRows(ctx, Request{GroupKeys: rowtree.GroupPath{"nope"}})

	wantOutcomes := []string{OutcomeNotReady, OutcomeOK, OutcomeNotFound}
	if !reflect.DeepEqual(obs.outcomes, wantOutcomes) {
		t.Errorf("expected outcomes %v, got %v", wantOutcomes, obs.outcomes)
	}
	if obs.rows[1] != 3 {
		t.Errorf("expected 3 rows observed, got %d", obs.rows[1])
	}
}

func TestAccessors(t *testing.T) {
	row := rowtree.RowView{IsGroup: true, ID: "E3"}
	if !IsServerSideGroup(row) {
		t.Error("expected group row")
	}
	if got := ServerSideGroupKey(row); got != "E3" {
		t.Errorf("expected key E3, got %q", got)
	}
	if IsServerSideGroup(rowtree.RowView{ID: "E2"}) {
		t.Error("expected leaf row")
	}
}

func TestOpenByDefault(t *testing.T) {
	for level, want := range []bool{true, true, false, false} {
		if got := OpenByDefault(level, 2); got != want {
			t.Errorf("level %d: expected %v, got %v", level, want, got)
		}
	}
	if OpenByDefault(0, 0) {
		t.Error("expected nothing open when openLevels is 0")
	}
}
