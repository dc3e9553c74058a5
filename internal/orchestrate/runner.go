// 包 orchestrate 负责主流程编排：
// - 对一组应用依次（或小规模并发）执行 抓取 → 合并入库
// - 单个应用失败不影响其它应用
// - 所有进度只通过 onStatus 回调外发，不与调用方共享可变状态
package orchestrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"go-review-trends/internal/logx"
	"go-review-trends/internal/model"
	"go-review-trends/internal/reviews"
)

// State 为单个应用的抓取状态。
type State int

const (
	StatePending State = iota
	StateFetching
	StateRetrying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status 为通过回调外发的应用级进度快照。
type Status struct {
	State   State
	Message string
	Fetched int // 截至当前已抓到的评论数
}

// Outcome 为单个应用的最终结果：成功时 Added 为合并后的新增数。
type Outcome struct {
	Added int
	Err   error
}

// Store 抽象评论落库能力。
type Store interface {
	Merge(ctx context.Context, appID string, incoming []model.Review) (int, error)
}

// Fetcher 抽象单应用抓取能力（由 reviews.Fetcher 实现）。
type Fetcher interface {
	Fetch(ctx context.Context, appID string, max int, progress func(reviews.Progress)) ([]model.Review, error)
}

// Runner 编排执行器。
type Runner struct {
	fetcher Fetcher
	store   Store
	workers int
}

// New 创建 Runner；workers<=1 表示串行（默认，限流最稳妥），上限 3。
func New(f Fetcher, s Store, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	if workers > 3 {
		workers = 3
	}
	return &Runner{fetcher: f, store: s, workers: workers}
}

// Run 依次处理各应用并返回 app_id → 结果 的映射。
// max 语义与 reviews.Fetcher.Fetch 相同；onStatus 可为 nil。
// ctx 取消时放弃尚未开始的应用，已抓完整页的数据照常入库。
func (r *Runner) Run(ctx context.Context, apps []model.Application, max int, onStatus func(appID string, st Status)) map[string]Outcome {
	runID := uuid.NewString()
	apps = dedupApps(apps)
	logx.Infof("开始抓取：run=%s 应用数=%d 并发=%d", runID, len(apps), r.workers)

	results := make(map[string]Outcome, len(apps))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.workers)
	for _, app := range apps {
		emit(onStatus, app.ID, Status{State: StatePending, Message: "排队等待"})
	}
	for _, app := range apps {
		if ctx.Err() != nil {
			mu.Lock()
			results[app.ID] = Outcome{Err: ctx.Err()}
			mu.Unlock()
			emit(onStatus, app.ID, Status{State: StateFailed, Message: "已取消"})
			continue
		}
		app := app
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			out := r.processApp(ctx, app, max, onStatus)
			mu.Lock()
			results[app.ID] = out
			mu.Unlock()
		}()
	}
	wg.Wait()
	logx.Infof("抓取结束：run=%s", runID)
	return results
}

// processApp 处理单个应用：抓取 → 合并入库 → 外发终态。
func (r *Runner) processApp(ctx context.Context, app model.Application, max int, onStatus func(string, Status)) Outcome {
	name := app.Name
	if name == "" {
		name = app.ID
	}
	emit(onStatus, app.ID, Status{State: StateFetching, Message: fmt.Sprintf("正在抓取 %s 的评论", name)})
	fetched := 0
	got, err := r.fetcher.Fetch(ctx, app.ID, max, func(p reviews.Progress) {
		if p.Retrying {
			emit(onStatus, app.ID, Status{
				State:   StateRetrying,
				Message: fmt.Sprintf("第 %d 次尝试：%v", p.Attempt, p.Err),
				Fetched: fetched,
			})
			return
		}
		fetched = p.Fetched
		emit(onStatus, app.ID, Status{State: StateFetching, Fetched: fetched})
	})
	for i := range got {
		got[i].AppName = name
	}
	// 抓取失败时可能带回已完成页的部分结果：照常入库（完整页的数据是一致的），
	// 但该应用仍按失败上报，调用方可稍后单独重试
	if err != nil {
		added := 0
		if len(got) > 0 {
			n, mErr := r.store.Merge(ctx, app.ID, got)
			if mErr != nil {
				logx.Warnf("[%s|%s] 部分结果入库失败：%v", name, app.ID, mErr)
			} else {
				added = n
				logx.Infof("[%s|%s] 已保留部分结果：%d 条（新增 %d 条）", name, app.ID, len(got), added)
			}
		}
		logx.Warnf("[%s|%s] 抓取失败：%v", name, app.ID, err)
		emit(onStatus, app.ID, Status{State: StateFailed, Message: oneLine(name, err), Fetched: len(got)})
		return Outcome{Added: added, Err: err}
	}
	added, err := r.store.Merge(ctx, app.ID, got)
	if err != nil {
		// 入库失败无法安全上报成功，该应用按失败处理，但不影响其它应用
		logx.Errorf("[%s|%s] 写入存储失败：%v", name, app.ID, err)
		emit(onStatus, app.ID, Status{State: StateFailed, Message: oneLine(name, err), Fetched: len(got)})
		return Outcome{Err: err}
	}
	logx.Infof("[%s|%s] 抓取完成：抓到 %d 条，新增 %d 条", name, app.ID, len(got), added)
	emit(onStatus, app.ID, Status{
		State:   StateSucceeded,
		Message: fmt.Sprintf("抓到 %d 条，新增 %d 条", len(got), added),
		Fetched: len(got),
	})
	return Outcome{Added: added}
}

// dedupApps 按 app_id 去重，保持输入顺序；同一应用同一时刻只抓一次。
func dedupApps(in []model.Application) []model.Application {
	seen := map[string]bool{}
	out := make([]model.Application, 0, len(in))
	for _, a := range in {
		if a.ID == "" || seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

// oneLine 生成一句话的失败描述（哪个应用、为什么）。
func oneLine(name string, err error) string {
	return fmt.Sprintf("%s 失败：%v", name, err)
}

func emit(onStatus func(string, Status), appID string, st Status) {
	if onStatus != nil {
		onStatus(appID, st)
	}
}
