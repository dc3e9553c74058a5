// 包 reviews 实现按游标翻页的评论抓取：
// - 单页失败按指数退避重试，次数有限
// - 翻页之间强制节流（成功也要等），避免触发上游限流
// - 重试耗尽时保留已完成页的部分结果
package reviews

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go-review-trends/internal/logx"
	"go-review-trends/internal/model"
)

// Page 为上游返回的一页评论；Next 为下一页游标，空串表示没有更多数据。
type Page struct {
	Reviews []model.Review
	Next    string
}

// Pager 抽象分页的评论数据源。cursor 为空串时表示从头开始。
type Pager interface {
	ReviewsPage(ctx context.Context, appID, cursor string) (Page, error)
}

// NoLimit 表示不设抓取上限（直到上游报告没有下一页，耗时不可控）。
const NoLimit = -1

// Options 为 Fetcher 的重试/节流参数。
type Options struct {
	Attempts   int           // 单页总尝试次数（含首次），默认 4
	Backoff    time.Duration // 首次重试前的等待，之后逐次翻倍，默认 1s
	BackoffCap time.Duration // 退避上限，默认 8s
	Pacing     time.Duration // 翻页间隔，默认 1s，另加最多一半的抖动
}

func (o *Options) fill() {
	if o.Attempts <= 0 {
		o.Attempts = 4
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 8 * time.Second
	}
	if o.Pacing < 0 {
		o.Pacing = 0
	}
}

// Progress 为抓取过程中回报给调用方的进度事件。
type Progress struct {
	Fetched  int   // 已累计抓到的评论数
	Attempt  int   // 当前页的第几次尝试（从 1 开始）
	Retrying bool  // true 表示当前页即将重试
	Err      error // 重试时携带触发原因
}

// Fetcher 按游标顺序抓取单个应用的全部（或最多 max 条）评论。
type Fetcher struct {
	pager Pager
	opts  Options
}

// New 创建 Fetcher，opts 中未设置的字段取默认值。
func New(p Pager, opts Options) *Fetcher {
	opts.fill()
	return &Fetcher{pager: p, opts: opts}
}

// Fetch 抓取 appID 的评论，最多 max 条（NoLimit 表示不限）。
// max 为 0 时不发任何请求，直接返回空结果。
// 重试耗尽返回 *FetchError(KindTransient)，同时带回已完成页的部分结果；
// 应用 ID 非法返回 *FetchError(KindInvalidTarget)，不做重试。
func (f *Fetcher) Fetch(ctx context.Context, appID string, max int, progress func(Progress)) ([]model.Review, error) {
	if max == 0 {
		return nil, nil
	}
	var out []model.Review
	cursor := ""
	for {
		page, err := f.fetchPage(ctx, appID, cursor, progress)
		if err != nil {
			// 已完成页的结果保留给调用方，由其决定部分结果是否算成功
			return out, err
		}
		for _, r := range page.Reviews {
			out = append(out, r)
			if max != NoLimit && len(out) >= max {
				report(progress, Progress{Fetched: len(out)})
				return out, nil
			}
		}
		report(progress, Progress{Fetched: len(out)})
		if page.Next == "" {
			return out, nil
		}
		cursor = page.Next
		// 成功之后也要等：节流与重试退避是两码事
		if err := f.pace(ctx); err != nil {
			return out, err
		}
	}
}

// fetchPage 请求同一页直到成功或尝试次数耗尽，退避逐次翻倍并封顶。
func (f *Fetcher) fetchPage(ctx context.Context, appID, cursor string, progress func(Progress)) (Page, error) {
	delay := f.opts.Backoff
	var lastErr error
	for attempt := 1; attempt <= f.opts.Attempts; attempt++ {
		page, err := f.pager.ReviewsPage(ctx, appID, cursor)
		if err == nil {
			return page, nil
		}
		if errors.Is(err, ErrInvalidTarget) {
			return Page{}, &FetchError{AppID: appID, Kind: KindInvalidTarget, Err: err}
		}
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		lastErr = err
		if attempt == f.opts.Attempts {
			break
		}
		logx.Warnf("[%s] 第 %d 次请求失败，%s 后重试：%v", appID, attempt, delay, err)
		report(progress, Progress{Attempt: attempt + 1, Retrying: true, Err: err})
		select {
		case <-ctx.Done():
			return Page{}, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > f.opts.BackoffCap {
			delay = f.opts.BackoffCap
		}
	}
	return Page{}, &FetchError{AppID: appID, Kind: KindTransient, Err: lastErr}
}

// pace 在两次翻页之间等待固定间隔加随机抖动，可被取消打断。
func (f *Fetcher) pace(ctx context.Context) error {
	d := f.opts.Pacing
	if d <= 0 {
		return nil
	}
	d += time.Duration(rand.Int63n(int64(d)/2 + 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func report(progress func(Progress), p Progress) {
	if progress != nil {
		progress(p)
	}
}
