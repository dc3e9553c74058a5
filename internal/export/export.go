// 包 export 负责把已存评论导出为人读格式：
// - ToCSV：每个应用一份 <app_id>_reviews.csv
// - ToJSON：全部应用的统计与派生序列写入 data.json
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go-review-trends/internal/model"
	"go-review-trends/internal/series"
	"go-review-trends/internal/store"
)

// csvHeader 为每应用 CSV 的固定列。
var csvHeader = []string{"app_id", "app_name", "review_id", "review_text", "review_rating", "review_date"}

// ToCSV 将 appID 的已存评论写为 dir/<app_id>_reviews.csv，返回文件路径。
// 没有数据时不创建文件，原样返回 store.ErrNotFound。
func ToCSV(ctx context.Context, s *store.SQLite, appID, dir string) (string, error) {
	rs, err := s.Load(ctx, appID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, appID+"_reviews.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write header %s: %w", path, err)
	}
	for _, r := range rs {
		rec := []string{
			r.AppID,
			r.AppName,
			r.ID,
			r.Text,
			strconv.Itoa(r.Rating),
			r.Created.UTC().Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("write row %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush %s: %w", path, err)
	}
	return path, nil
}

// ToJSON 汇总全部已存应用（统计 + 三种序列）并写入 JSON 文件（带缩进格式）。
func ToJSON(ctx context.Context, s *store.SQLite, windowDays int, path string) error {
	apps, err := s.Apps(ctx)
	if err != nil {
		return fmt.Errorf("list apps: %w", err)
	}
	out := model.Export{
		GeneratedAt: time.Now(),
		WindowDays:  windowDays,
		Apps:        make([]model.AppSummary, 0, len(apps)),
	}
	for _, a := range apps {
		rs, err := s.Load(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("load %s: %w", a.ID, err)
		}
		out.Apps = append(out.Apps, Summarize(a, rs, windowDays))
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json to %s: %w", path, err)
	}
	return nil
}

// Summarize 计算单个应用的统计与三种派生序列。
func Summarize(app model.Application, rs []model.Review, windowDays int) model.AppSummary {
	sum := model.AppSummary{
		AppID:      app.ID,
		AppName:    app.Name,
		Count:      len(rs),
		Cumulative: series.Aggregate(rs, series.Cumulative, 0),
		Rolling:    series.Aggregate(rs, series.Rolling, windowDays),
		Monthly:    series.Aggregate(rs, series.Monthly, 0),
	}
	if n := len(sum.Cumulative); n > 0 {
		// 累计序列的末点即整体均值
		sum.MeanRating = sum.Cumulative[n-1].Value
	}
	for _, r := range rs {
		if sum.FirstAt.IsZero() || r.Created.Before(sum.FirstAt) {
			sum.FirstAt = r.Created
		}
		if r.Created.After(sum.LastAt) {
			sum.LastAt = r.Created
		}
	}
	return sum
}
