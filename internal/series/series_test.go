package series

import (
	"math"
	"testing"
	"time"

	"go-review-trends/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func rv(id string, rating int, t time.Time) model.Review {
	return model.Review{AppID: "app", ID: id, Rating: rating, Created: t}
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestAggregate_EmptyInput(t *testing.T) {
	for _, k := range []Kind{Cumulative, Rolling, Monthly} {
		if got := Aggregate(nil, k, 30); len(got) != 0 {
			t.Fatalf("%s: empty input produced %d points", k, len(got))
		}
	}
}

func TestCumulative_SharedTimestampCollapses(t *testing.T) {
	in := []model.Review{
		rv("r1", 5, day(2024, 1, 1)),
		rv("r2", 3, day(2024, 1, 1)),
		rv("r3", 4, day(2024, 2, 15)),
	}
	got := Aggregate(in, Cumulative, 0)
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2: %v", len(got), got)
	}
	if !got[0].Date.Equal(day(2024, 1, 1)) || !almostEqual(got[0].Value, 4.0) {
		t.Fatalf("point[0] = %v, want (2024-01-01, 4.0)", got[0])
	}
	if !got[1].Date.Equal(day(2024, 2, 15)) || !almostEqual(got[1].Value, 4.0) {
		t.Fatalf("point[1] = %v, want (2024-02-15, 4.0)", got[1])
	}
}

func TestCumulative_LastPointIsOverallMean(t *testing.T) {
	in := []model.Review{
		rv("a", 1, day(2023, 3, 1)),
		rv("b", 5, day(2023, 4, 2)),
		rv("c", 4, day(2023, 5, 3)),
		rv("d", 2, day(2023, 5, 3)),
	}
	got := Aggregate(in, Cumulative, 0)
	if len(got) == 0 {
		t.Fatal("no points")
	}
	if !almostEqual(got[len(got)-1].Value, 3.0) {
		t.Fatalf("last value = %v, want overall mean 3.0", got[len(got)-1].Value)
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Date.After(got[i-1].Date) {
			t.Fatalf("dates not strictly increasing: %v", got)
		}
	}
}

func TestCumulative_UnsortedInput(t *testing.T) {
	in := []model.Review{
		rv("late", 1, day(2024, 6, 1)),
		rv("early", 5, day(2024, 1, 1)),
	}
	got := Aggregate(in, Cumulative, 0)
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2", len(got))
	}
	if !almostEqual(got[0].Value, 5.0) || !almostEqual(got[1].Value, 3.0) {
		t.Fatalf("values = %v, want [5.0 3.0]", got)
	}
}

func TestMonthly_MeansAndGapOmission(t *testing.T) {
	in := []model.Review{
		rv("r1", 5, day(2024, 1, 1)),
		rv("r2", 3, day(2024, 1, 20)),
		// 2024-02 与 2024-03 无评论，不应出现在结果中
		rv("r3", 4, day(2024, 4, 15)),
	}
	got := Aggregate(in, Monthly, 0)
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2: %v", len(got), got)
	}
	if !got[0].Date.Equal(day(2024, 1, 1)) || !almostEqual(got[0].Value, 4.0) {
		t.Fatalf("point[0] = %v, want (2024-01, 4.0)", got[0])
	}
	if !got[1].Date.Equal(day(2024, 4, 1)) || !almostEqual(got[1].Value, 4.0) {
		t.Fatalf("point[1] = %v, want (2024-04, 4.0)", got[1])
	}
}

func TestMonthly_SpecExactScenario(t *testing.T) {
	in := []model.Review{
		rv("r1", 5, day(2024, 1, 1)),
		rv("r2", 3, day(2024, 1, 1)),
		rv("r3", 4, day(2024, 2, 15)),
	}
	got := Aggregate(in, Monthly, 0)
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2", len(got))
	}
	if got[0].Date.Format("2006-01") != "2024-01" || !almostEqual(got[0].Value, 4.0) {
		t.Fatalf("point[0] = %v", got[0])
	}
	if got[1].Date.Format("2006-01") != "2024-02" || !almostEqual(got[1].Value, 4.0) {
		t.Fatalf("point[1] = %v", got[1])
	}
}

func TestRolling_SingleTimestampSinglePoint(t *testing.T) {
	ts := day(2024, 5, 10)
	in := []model.Review{
		rv("a", 5, ts),
		rv("b", 3, ts),
		rv("c", 1, ts),
	}
	got := Aggregate(in, Rolling, 30)
	if len(got) != 1 {
		t.Fatalf("points = %d, want 1: %v", len(got), got)
	}
	if !got[0].Date.Equal(ts) || !almostEqual(got[0].Value, 3.0) {
		t.Fatalf("point = %v, want (2024-05-10, 3.0)", got[0])
	}
}

func TestRolling_WindowLooksBackward(t *testing.T) {
	in := []model.Review{
		rv("a", 5, day(2024, 1, 1)),
		rv("b", 1, day(2024, 1, 20)), // 窗口 30 天，含 1 月 1 日
		rv("c", 3, day(2024, 6, 1)),  // 距前两条远超窗口
	}
	got := Aggregate(in, Rolling, 30)
	if len(got) != 3 {
		t.Fatalf("points = %d, want 3: %v", len(got), got)
	}
	if !almostEqual(got[0].Value, 5.0) {
		t.Fatalf("point[0] = %v, want 5.0", got[0])
	}
	if !almostEqual(got[1].Value, 3.0) {
		t.Fatalf("point[1] = %v, want mean(5,1)=3.0", got[1])
	}
	if !almostEqual(got[2].Value, 3.0) {
		t.Fatalf("point[2] = %v, want 3.0 (alone in window)", got[2])
	}
}

func TestRolling_NoPointsForReviewFreeDays(t *testing.T) {
	in := []model.Review{
		rv("a", 4, day(2024, 1, 1)),
		rv("b", 2, day(2024, 1, 10)),
	}
	got := Aggregate(in, Rolling, 30)
	// 中间的 1 月 2 日至 9 日没有评论，不应补点
	if len(got) != 2 {
		t.Fatalf("points = %d, want 2: %v", len(got), got)
	}
}

func TestAggregateAll_IndependentPerApp(t *testing.T) {
	in := map[string][]model.Review{
		"a": {rv("1", 5, day(2024, 1, 1))},
		"b": {rv("2", 1, day(2024, 1, 1))},
	}
	got := AggregateAll(in, Cumulative, 0)
	if len(got) != 2 {
		t.Fatalf("apps = %d, want 2", len(got))
	}
	if !almostEqual(got["a"][0].Value, 5.0) || !almostEqual(got["b"][0].Value, 1.0) {
		t.Fatalf("cross-app mixing: %v", got)
	}
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{"cumulative": Cumulative, "rolling": Rolling, "monthly": Monthly} {
		k, ok := ParseKind(name)
		if !ok || k != want {
			t.Fatalf("ParseKind(%q) = %v,%v", name, k, ok)
		}
	}
	if _, ok := ParseKind("weekly"); ok {
		t.Fatal("ParseKind accepted unknown kind")
	}
}
