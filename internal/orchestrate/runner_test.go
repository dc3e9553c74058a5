package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-review-trends/internal/model"
	"go-review-trends/internal/reviews"
	"go-review-trends/internal/store"
)

// fakeFetcher 按 appID 返回预置结果。
type fakeFetcher struct {
	mu      sync.Mutex
	results map[string][]model.Review
	errs    map[string]error
	retries map[string]int // 每个应用模拟的重试次数（通过 progress 回报）
	calls   []string
}

func (f *fakeFetcher) Fetch(_ context.Context, appID string, _ int, progress func(reviews.Progress)) ([]model.Review, error) {
	f.mu.Lock()
	f.calls = append(f.calls, appID)
	f.mu.Unlock()
	for i := 0; i < f.retries[appID]; i++ {
		if progress != nil {
			progress(reviews.Progress{Attempt: i + 2, Retrying: true, Err: errors.New("flaky")})
		}
	}
	if err := f.errs[appID]; err != nil {
		return f.results[appID], err
	}
	rs := f.results[appID]
	if progress != nil {
		progress(reviews.Progress{Fetched: len(rs)})
	}
	return rs, nil
}

func someReviews(appID string, n int) []model.Review {
	out := make([]model.Review, 0, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out = append(out, model.Review{
			AppID:   appID,
			ID:      fmt.Sprintf("%s-r%d", appID, i),
			Rating:  4,
			Created: base.AddDate(0, 0, i),
		})
	}
	return out
}

func openTestStore(t *testing.T) *store.SQLite {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_FailureIsolatedPerApp(t *testing.T) {
	st := openTestStore(t)
	transient := &reviews.FetchError{AppID: "com.b", Kind: reviews.KindTransient, Err: errors.New("rate limited")}
	ff := &fakeFetcher{
		results: map[string][]model.Review{"com.a": someReviews("com.a", 3)},
		errs:    map[string]error{"com.b": transient},
		retries: map[string]int{"com.b": 3},
	}
	r := New(ff, st, 1)

	var mu sync.Mutex
	states := map[string][]State{}
	out := r.Run(context.Background(), []model.Application{
		{ID: "com.a", Name: "A"},
		{ID: "com.b", Name: "B"},
	}, reviews.NoLimit, func(appID string, s Status) {
		mu.Lock()
		states[appID] = append(states[appID], s.State)
		mu.Unlock()
	})

	if out["com.a"].Err != nil || out["com.a"].Added != 3 {
		t.Fatalf("A outcome = %+v, want 3 added", out["com.a"])
	}
	var fe *reviews.FetchError
	if !errors.As(out["com.b"].Err, &fe) {
		t.Fatalf("B outcome = %+v, want FetchError", out["com.b"])
	}
	// B 失败不影响 A 的数据已经入库
	rs, err := st.Load(context.Background(), "com.a")
	if err != nil || len(rs) != 3 {
		t.Fatalf("stored A reviews = %d err = %v, want 3", len(rs), err)
	}
	if _, err := st.Load(context.Background(), "com.b"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("B should have nothing stored, got err = %v", err)
	}

	last := func(ss []State) State { return ss[len(ss)-1] }
	if last(states["com.a"]) != StateSucceeded {
		t.Fatalf("A states = %v, want last succeeded", states["com.a"])
	}
	if last(states["com.b"]) != StateFailed {
		t.Fatalf("B states = %v, want last failed", states["com.b"])
	}
	// 重试会以 retrying 状态外发
	sawRetry := false
	for _, s := range states["com.b"] {
		if s == StateRetrying {
			sawRetry = true
		}
	}
	if !sawRetry {
		t.Fatalf("B states = %v, want a retrying transition", states["com.b"])
	}
}

func TestRun_ReportsMergedNotRawCount(t *testing.T) {
	st := openTestStore(t)
	rs := someReviews("com.a", 4)
	if _, err := st.Merge(context.Background(), "com.a", rs[:2]); err != nil {
		t.Fatalf("pre-merge: %v", err)
	}
	ff := &fakeFetcher{results: map[string][]model.Review{"com.a": rs}}
	r := New(ff, st, 1)
	out := r.Run(context.Background(), []model.Application{{ID: "com.a", Name: "A"}}, reviews.NoLimit, nil)
	// 抓到 4 条，其中 2 条已有：上报合并后的新增数
	if out["com.a"].Err != nil || out["com.a"].Added != 2 {
		t.Fatalf("outcome = %+v, want 2 added", out["com.a"])
	}
}

func TestRun_PartialResultStillMerged(t *testing.T) {
	st := openTestStore(t)
	transient := &reviews.FetchError{AppID: "com.a", Kind: reviews.KindTransient, Err: errors.New("gave up")}
	ff := &fakeFetcher{
		results: map[string][]model.Review{"com.a": someReviews("com.a", 2)},
		errs:    map[string]error{"com.a": transient},
	}
	r := New(ff, st, 1)
	out := r.Run(context.Background(), []model.Application{{ID: "com.a", Name: "A"}}, reviews.NoLimit, nil)
	if out["com.a"].Err == nil {
		t.Fatal("want failure outcome")
	}
	// 已完成页的部分结果照常入库
	rs, err := st.Load(context.Background(), "com.a")
	if err != nil || len(rs) != 2 {
		t.Fatalf("stored = %d err = %v, want 2", len(rs), err)
	}
}

func TestRun_DuplicateAppsFetchedOnce(t *testing.T) {
	st := openTestStore(t)
	ff := &fakeFetcher{results: map[string][]model.Review{"com.a": someReviews("com.a", 1)}}
	r := New(ff, st, 2)
	out := r.Run(context.Background(), []model.Application{
		{ID: "com.a", Name: "A"},
		{ID: "com.a", Name: "A again"},
	}, reviews.NoLimit, nil)
	if len(out) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(out))
	}
	if len(ff.calls) != 1 {
		t.Fatalf("fetch calls = %v, want one", ff.calls)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	st := openTestStore(t)
	ff := &fakeFetcher{}
	r := New(ff, st, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := r.Run(ctx, []model.Application{{ID: "com.a"}}, reviews.NoLimit, nil)
	if out["com.a"].Err == nil {
		t.Fatalf("outcome = %+v, want cancellation error", out["com.a"])
	}
	if len(ff.calls) != 0 {
		t.Fatalf("fetch calls = %v, want none", ff.calls)
	}
}
