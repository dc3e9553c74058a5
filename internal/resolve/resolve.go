// 包 resolve 将用户输入的应用名解析为候选应用列表。
// 零候选是合法答案（"没找到"），与搜索调用本身失败（ResolutionError）严格区分；
// 多候选的取舍交给调用方，这里不做任何选择。
package resolve

import (
	"context"
	"fmt"

	"go-review-trends/internal/logx"
	"go-review-trends/internal/model"
)

// Searcher 抽象应用市场的搜索能力。
type Searcher interface {
	Search(ctx context.Context, name string) ([]model.Application, error)
}

// ResolutionError 表示搜索调用本身失败（网络错误/响应不可解析）。
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve app %q: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolver 执行应用名到候选 ID 的解析。
type Resolver struct {
	searcher Searcher
}

// New 创建 Resolver。
func New(s Searcher) *Resolver {
	return &Resolver{searcher: s}
}

// Resolve 返回 name 的候选应用。空结果直接返回空切片，不触发重试；
// 传输失败最多原地重试一次（搜索是廉价的一次性调用，不走限流路径）。
func (r *Resolver) Resolve(ctx context.Context, name string) ([]model.Application, error) {
	apps, err := r.searcher.Search(ctx, name)
	if err == nil {
		return apps, nil
	}
	if ctx.Err() != nil {
		return nil, &ResolutionError{Name: name, Err: err}
	}
	logx.Debugf("搜索 %q 失败，重试一次：%v", name, err)
	apps, err2 := r.searcher.Search(ctx, name)
	if err2 != nil {
		return nil, &ResolutionError{Name: name, Err: err2}
	}
	return apps, nil
}
