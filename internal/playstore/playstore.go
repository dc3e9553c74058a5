// 包 playstore 实现 Google Play 数据源：
// - Search：抓取搜索结果页并用 goquery 抽取候选应用（ID 与展示名）
// - ReviewsPage：调用 batchexecute 评论接口，按 continuation token 翻页
// 失败分类：4xx（除 429）视为目标非法不可重试，429/5xx/网络错误视为瞬时失败。
package playstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"go-review-trends/internal/fetch"
	"go-review-trends/internal/logx"
	"go-review-trends/internal/model"
	"go-review-trends/internal/reviews"
)

const (
	defaultBaseURL = "https://play.google.com"
	// reviewsRPC 为 Play 前端内部接口的 RPC 标识
	reviewsRPC = "UsvDTd"
	// pageSize 由上游默认值决定，不开放给用户调节
	pageSize = 200
	// sortMostRelevant 与原工具一致：按相关度排序
	sortMostRelevant = 1
	// maxSearchHits 搜索候选上限
	maxSearchHits = 5
)

// Options 为客户端构造参数。
type Options struct {
	Market  string // 国家代码（gl），如 ph
	Lang    string // 语言代码（hl），如 en
	BaseURL string // 留空使用线上地址，测试时指向本地假服务
}

// Client 为 Google Play 数据源客户端。
type Client struct {
	hc     *fetch.Client
	market string
	lang   string
	base   string
}

// New 创建客户端。
func New(hc *fetch.Client, opts Options) *Client {
	base := opts.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{hc: hc, market: opts.Market, lang: opts.Lang, base: strings.TrimRight(base, "/")}
}

// Search 抓取搜索结果页，返回至多 maxSearchHits 个候选应用。
// 没有命中不算错误，返回空切片。
func (c *Client) Search(ctx context.Context, name string) ([]model.Application, error) {
	q := url.Values{}
	q.Set("q", name)
	q.Set("c", "apps")
	q.Set("hl", c.lang)
	q.Set("gl", c.market)
	u := c.base + "/store/search?" + q.Encode()
	resp, err := c.hc.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("GET search %q: %w", name, err)
	}
	defer resp.Body.Close()
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("parse search html: %w", err)
	}
	var out []model.Application
	seen := map[string]bool{}
	doc.Find(`a[href*="/store/apps/details?id="]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		id := detailsID(href)
		if id == "" || seen[id] {
			return true
		}
		title := titleOf(s)
		if title == "" {
			return true
		}
		seen[id] = true
		out = append(out, model.Application{ID: id, Name: title, Market: c.market})
		return len(out) < maxSearchHits
	})
	return out, nil
}

// detailsID 从详情页链接中取出应用 ID。
func detailsID(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !strings.HasSuffix(u.Path, "/store/apps/details") {
		return ""
	}
	return strings.TrimSpace(u.Query().Get("id"))
}

// titleOf 从结果卡片中取展示名，按若干候选位置回退：
// 图片 alt → 卡片内文本 → 链接自身的 aria-label。
func titleOf(s *goquery.Selection) string {
	if alt, ok := s.Find("img").First().Attr("alt"); ok {
		if v := strings.TrimSpace(alt); v != "" && !strings.EqualFold(v, "thumbnail image") {
			return v
		}
	}
	if v := strings.TrimSpace(s.Find("span").First().Text()); v != "" {
		return v
	}
	if label, ok := s.Attr("aria-label"); ok {
		return strings.TrimSpace(label)
	}
	return strings.TrimSpace(s.Text())
}

// ReviewsPage 请求一页评论。cursor 为空串表示第一页；
// 返回的 Next 为空串表示没有更多数据。
func (c *Client) ReviewsPage(ctx context.Context, appID, cursor string) (reviews.Page, error) {
	body, err := reviewsRequestBody(appID, cursor)
	if err != nil {
		return reviews.Page{}, fmt.Errorf("build reviews request: %w", err)
	}
	q := url.Values{}
	q.Set("hl", c.lang)
	q.Set("gl", c.market)
	u := c.base + "/_/PlayStoreUi/data/batchexecute?" + q.Encode()
	resp, err := c.hc.PostForm(ctx, u, url.Values{"f.req": {body}})
	if err != nil {
		return reviews.Page{}, fmt.Errorf("POST reviews %s: %w: %w", appID, reviews.ErrTransient, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return reviews.Page{}, fmt.Errorf("reviews %s: http status %s: %w", appID, resp.Status, reviews.ErrTransient)
	case resp.StatusCode >= 400:
		return reviews.Page{}, fmt.Errorf("reviews %s: http status %s: %w", appID, resp.Status, reviews.ErrInvalidTarget)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return reviews.Page{}, fmt.Errorf("read reviews %s: %w: %w", appID, reviews.ErrTransient, err)
	}
	payload, ok := envelopePayload(raw)
	if !ok {
		return reviews.Page{}, fmt.Errorf("reviews %s: malformed response envelope: %w", appID, reviews.ErrTransient)
	}
	if payload == "" || payload == "null" {
		if cursor == "" {
			// 第一页就拿不到任何数据：视为应用 ID 非法
			return reviews.Page{}, fmt.Errorf("reviews %s: empty payload: %w", appID, reviews.ErrInvalidTarget)
		}
		return reviews.Page{}, nil
	}
	page, err := parseReviewsPayload(appID, payload)
	if err != nil {
		return reviews.Page{}, fmt.Errorf("reviews %s: %w: %w", appID, reviews.ErrTransient, err)
	}
	logx.Debugf("[%s] 解析到 %d 条评论，next=%v", appID, len(page.Reviews), page.Next != "")
	return page, nil
}

// reviewsRequestBody 构造 f.req 表单值：外层 RPC 信封包住内层参数 JSON。
func reviewsRequestBody(appID, cursor string) (string, error) {
	var token any
	if cursor != "" {
		token = cursor
	}
	inner, err := json.Marshal([]any{
		nil, nil,
		[]any{2, sortMostRelevant, []any{pageSize, nil, token}, nil, []any{}},
		[]any{appID, 7},
	})
	if err != nil {
		return "", err
	}
	outer, err := json.Marshal([]any{[]any{[]any{reviewsRPC, string(inner), nil, "generic"}}})
	if err != nil {
		return "", err
	}
	return string(outer), nil
}

// envelopePayload 从 batchexecute 响应中取出评论 RPC 的负载字符串。
// 响应以反 JSON 前缀开头，之后是若干行长度与 JSON 混排，
// 负载藏在 ["wrb.fr","UsvDTd","<json>"] 信封里。
func envelopePayload(raw []byte) (string, bool) {
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[") {
			continue
		}
		var env []any
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			continue
		}
		for _, e := range env {
			frame, ok := e.([]any)
			if !ok || len(frame) < 3 {
				continue
			}
			if asString(at(frame, 0)) != "wrb.fr" || asString(at(frame, 1)) != reviewsRPC {
				continue
			}
			if frame[2] == nil {
				return "", true
			}
			return asString(frame[2]), true
		}
	}
	return "", false
}

// parseReviewsPayload 解析内层 JSON：
// 负载形如 [ [评论数组...], [null, token] ]，
// 单条评论的关键下标：0=评论 ID，2=评分，4=正文，5=[秒级时间戳, 纳秒]。
func parseReviewsPayload(appID, payload string) (reviews.Page, error) {
	var root []any
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return reviews.Page{}, fmt.Errorf("decode payload: %w", err)
	}
	var page reviews.Page
	items, _ := at(root, 0).([]any)
	for _, it := range items {
		r, ok := it.([]any)
		if !ok {
			continue
		}
		id := asString(at(r, 0))
		if id == "" {
			continue
		}
		rating := int(asFloat(at(r, 2)))
		if rating < 1 || rating > 5 {
			continue
		}
		var created time.Time
		if ts, ok := at(r, 5).([]any); ok {
			if sec := asFloat(at(ts, 0)); sec > 0 {
				created = time.Unix(int64(sec), 0).UTC()
			}
		}
		page.Reviews = append(page.Reviews, model.Review{
			AppID:   appID,
			ID:      id,
			Text:    asString(at(r, 4)),
			Rating:  rating,
			Created: created,
		})
	}
	if tail, ok := at(root, 1).([]any); ok {
		page.Next = asString(at(tail, 1))
	}
	return page, nil
}

// at 安全取下标，越界返回 nil。
func at(arr []any, i int) any {
	if i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
