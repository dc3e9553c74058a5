package reviews

import (
	"errors"
	"fmt"
)

// 上游数据源用哨兵错误标注失败类别，Fetcher 据此决定是否重试。
var (
	// ErrInvalidTarget：应用 ID 非法或请求本身不被接受，重试无意义。
	ErrInvalidTarget = errors.New("invalid app target")
	// ErrTransient：网络抖动/5xx/限流信号，可在退避后重试同一页。
	ErrTransient = errors.New("transient upstream failure")
)

// Kind 为抓取失败的类别。
type Kind int

const (
	KindInvalidTarget Kind = iota
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindInvalidTarget:
		return "invalid target"
	case KindTransient:
		return "transient or rate-limited"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FetchError 表示某个应用的抓取在重试耗尽或被拒后失败。
// 一句话即可向用户解释：哪个应用、哪类失败、底层原因。
type FetchError struct {
	AppID string
	Kind  Kind
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch reviews for %s: %s: %v", e.AppID, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
