// 包 series 将带时间戳的评分转换为三种派生序列：
// - Cumulative：按时间排序的累计均值，每个不同时间戳一个点
// - Rolling：按天回看固定窗口的滑动均值，只在有评论的日期出点
// - Monthly：按自然月分桶的均值，没有评论的月份直接省略（已知空档，不插值）
// 聚合永不报错：输入为空时输出为空序列，可视化层据此展示"无数据"。
package series

import (
	"sort"
	"time"

	"go-review-trends/internal/model"
)

// Kind 为派生序列的类型。
type Kind int

const (
	Cumulative Kind = iota
	Rolling
	Monthly
)

func (k Kind) String() string {
	switch k {
	case Cumulative:
		return "cumulative"
	case Rolling:
		return "rolling"
	case Monthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// ParseKind 解析命令行/配置中的序列类型名，未识别时回落到 Cumulative。
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "cumulative":
		return Cumulative, true
	case "rolling":
		return Rolling, true
	case "monthly":
		return Monthly, true
	default:
		return Cumulative, false
	}
}

// DefaultWindowDays 为滑动窗口的默认跨度（天）。
const DefaultWindowDays = 30

// Aggregate 对单个应用的评论集合计算派生序列。
// windowDays 仅对 Rolling 生效，<=0 时取 DefaultWindowDays。
func Aggregate(in []model.Review, kind Kind, windowDays int) model.Series {
	if len(in) == 0 {
		return nil
	}
	rs := sortByTime(in)
	switch kind {
	case Rolling:
		if windowDays <= 0 {
			windowDays = DefaultWindowDays
		}
		return rolling(rs, windowDays)
	case Monthly:
		return monthly(rs)
	default:
		return cumulative(rs)
	}
}

// AggregateAll 对多个应用分别独立聚合，互不平均，叠加对比交给展示层。
func AggregateAll(in map[string][]model.Review, kind Kind, windowDays int) map[string]model.Series {
	out := make(map[string]model.Series, len(in))
	for appID, rs := range in {
		out[appID] = Aggregate(rs, kind, windowDays)
	}
	return out
}

// sortByTime 返回按 (时间戳, 评论 ID) 稳定升序的副本，保证结果可复现。
func sortByTime(in []model.Review) []model.Review {
	rs := make([]model.Review, len(in))
	copy(rs, in)
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Created.Equal(rs[j].Created) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].Created.Before(rs[j].Created)
	})
	return rs
}

// cumulative 计算累计均值：同一时间戳的多条评论合并成一个点，取该时刻的最终累计值。
func cumulative(rs []model.Review) model.Series {
	var out model.Series
	sum := 0.0
	for i, r := range rs {
		sum += float64(r.Rating)
		v := sum / float64(i+1)
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Created) {
			out[n-1].Value = v
			continue
		}
		out = append(out, model.Point{Date: r.Created, Value: v})
	}
	return out
}

// rolling 按天计算回看窗口均值：窗口为 [当天-w+1, 当天]，
// 只有自身含评论的日期才出点，窗口内无评论的日期不补零也不留空点。
func rolling(rs []model.Review, windowDays int) model.Series {
	days := make([]time.Time, 0, len(rs))
	seen := make(map[time.Time]struct{})
	for _, r := range rs {
		d := dayOf(r.Created)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	var out model.Series
	lo := 0
	for _, d := range days {
		winStart := d.AddDate(0, 0, -(windowDays - 1))
		winEnd := d.AddDate(0, 0, 1) // 不含
		for lo < len(rs) && rs[lo].Created.Before(winStart) {
			lo++
		}
		sum, n := 0.0, 0
		for i := lo; i < len(rs) && rs[i].Created.Before(winEnd); i++ {
			sum += float64(rs[i].Rating)
			n++
		}
		if n > 0 {
			out = append(out, model.Point{Date: d, Value: sum / float64(n)})
		}
	}
	return out
}

// monthly 按自然月分桶求均值，桶的日期取当月一日（UTC）。
func monthly(rs []model.Review) model.Series {
	type bucket struct {
		sum float64
		n   int
	}
	buckets := make(map[time.Time]*bucket)
	for _, r := range rs {
		m := time.Date(r.Created.Year(), r.Created.Month(), 1, 0, 0, 0, 0, time.UTC)
		b := buckets[m]
		if b == nil {
			b = &bucket{}
			buckets[m] = b
		}
		b.sum += float64(r.Rating)
		b.n++
	}
	months := make([]time.Time, 0, len(buckets))
	for m := range buckets {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	out := make(model.Series, 0, len(months))
	for _, m := range months {
		b := buckets[m]
		out = append(out, model.Point{Date: m, Value: b.sum / float64(b.n)})
	}
	return out
}

// dayOf 将时间戳截断到当天零点（UTC）。
func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
