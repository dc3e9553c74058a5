// 包 appstore 实现 Apple App Store 数据源：
// - Search：iTunes Search API（JSON）
// - ReviewsPage：customerreviews RSS，用 gofeed 解析，游标即页码（上游最多 10 页）
// 与 playstore 实现同一套搜索/翻页契约，便于在配置里切换商店。
package appstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"go-review-trends/internal/fetch"
	"go-review-trends/internal/logx"
	"go-review-trends/internal/model"
	"go-review-trends/internal/reviews"
)

const (
	defaultSearchBaseURL = "https://itunes.apple.com"
	defaultFeedBaseURL   = "https://itunes.apple.com"
	// maxPages 为上游 RSS 的硬上限，再往后翻也只会返回空页
	maxPages = 10
	// maxSearchHits 搜索候选上限
	maxSearchHits = 5
)

// Options 为客户端构造参数。
type Options struct {
	Market        string // storefront 国家代码，如 ph
	SearchBaseURL string // 测试时指向本地假服务
	FeedBaseURL   string
}

// Client 为 App Store 数据源客户端。
type Client struct {
	hc         *fetch.Client
	market     string
	searchBase string
	feedBase   string
}

// New 创建客户端。
func New(hc *fetch.Client, opts Options) *Client {
	searchBase := opts.SearchBaseURL
	if searchBase == "" {
		searchBase = defaultSearchBaseURL
	}
	feedBase := opts.FeedBaseURL
	if feedBase == "" {
		feedBase = defaultFeedBaseURL
	}
	return &Client{
		hc:         hc,
		market:     opts.Market,
		searchBase: strings.TrimRight(searchBase, "/"),
		feedBase:   strings.TrimRight(feedBase, "/"),
	}
}

// searchResult 仅保留需要的字段。
type searchResult struct {
	Results []struct {
		TrackID   int64  `json:"trackId"`
		TrackName string `json:"trackName"`
	} `json:"results"`
}

// Search 调用 iTunes Search API，返回至多 maxSearchHits 个候选应用。
func (c *Client) Search(ctx context.Context, name string) ([]model.Application, error) {
	q := url.Values{}
	q.Set("term", name)
	q.Set("country", c.market)
	q.Set("entity", "software")
	q.Set("limit", strconv.Itoa(maxSearchHits))
	u := c.searchBase + "/search?" + q.Encode()
	resp, err := c.hc.Get(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("GET itunes search %q: %w", name, err)
	}
	defer resp.Body.Close()
	var sr searchResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode itunes search %q: %w", name, err)
	}
	var out []model.Application
	for _, r := range sr.Results {
		if r.TrackID == 0 {
			continue
		}
		out = append(out, model.Application{
			ID:     strconv.FormatInt(r.TrackID, 10),
			Name:   r.TrackName,
			Market: c.market,
		})
		if len(out) >= maxSearchHits {
			break
		}
	}
	return out, nil
}

// ReviewsPage 抓取一页评论 RSS。cursor 为空串表示第一页，
// Next 为下一页页码，翻完（空页或到达上游上限）时为空串。
func (c *Client) ReviewsPage(ctx context.Context, appID, cursor string) (reviews.Page, error) {
	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return reviews.Page{}, fmt.Errorf("reviews %s: bad cursor %q: %w", appID, cursor, reviews.ErrInvalidTarget)
		}
		page = n
	}
	u := fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/xml",
		c.feedBase, c.market, page, url.PathEscape(appID))
	resp, err := c.hc.GetOnce(ctx, u)
	if err != nil {
		return reviews.Page{}, fmt.Errorf("GET reviews %s page %d: %w: %w", appID, page, reviews.ErrTransient, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == 429 || resp.StatusCode >= 500:
		return reviews.Page{}, fmt.Errorf("reviews %s: http status %s: %w", appID, resp.Status, reviews.ErrTransient)
	case resp.StatusCode >= 400:
		return reviews.Page{}, fmt.Errorf("reviews %s: http status %s: %w", appID, resp.Status, reviews.ErrInvalidTarget)
	}
	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return reviews.Page{}, fmt.Errorf("parse reviews feed %s: %w: %w", appID, reviews.ErrTransient, err)
	}
	out := reviews.Page{}
	for _, it := range feed.Items {
		r, ok := itemToReview(appID, it)
		if !ok {
			continue
		}
		out.Reviews = append(out.Reviews, r)
	}
	logx.Debugf("[%s] 第 %d 页解析到 %d 条评论", appID, page, len(out.Reviews))
	if len(out.Reviews) > 0 && page < maxPages {
		out.Next = strconv.Itoa(page + 1)
	}
	return out, nil
}

// itemToReview 将一个 RSS 条目归一化为评论。
// 评分在 im:rating 扩展里；第一条常是应用自身的元数据条目，没有评分，跳过。
func itemToReview(appID string, it *gofeed.Item) (model.Review, bool) {
	rating := ratingOf(it)
	if rating < 1 || rating > 5 {
		return model.Review{}, false
	}
	id := it.GUID
	if id == "" {
		id = it.Link
	}
	if id == "" {
		return model.Review{}, false
	}
	r := model.Review{
		AppID:  appID,
		ID:     id,
		Text:   strings.TrimSpace(it.Content),
		Rating: rating,
	}
	if r.Text == "" {
		r.Text = strings.TrimSpace(it.Description)
	}
	if it.UpdatedParsed != nil {
		r.Created = it.UpdatedParsed.UTC()
	} else if it.PublishedParsed != nil {
		r.Created = it.PublishedParsed.UTC()
	}
	return r, true
}

// ratingOf 读取 im:rating 扩展值，缺失或非数字返回 0。
func ratingOf(it *gofeed.Item) int {
	ext, ok := it.Extensions["im"]
	if !ok {
		return 0
	}
	vals, ok := ext["rating"]
	if !ok || len(vals) == 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0].Value))
	if err != nil {
		return 0
	}
	return n
}
