// 包 model 定义核心数据模型（应用/评论/时间序列/导出结构）。
package model

import "time"

// Application 表示一次搜索解析出的候选应用。
type Application struct {
	ID     string `json:"app_id"`
	Name   string `json:"app_name"`
	Market string `json:"market"`
}

// Review 为归一化后的单条评论。
// ID 为上游提供的评论标识，用于跨批次去重。
type Review struct {
	AppID   string    `json:"app_id"`
	AppName string    `json:"app_name,omitempty"`
	ID      string    `json:"review_id"`
	Text    string    `json:"review_text"`
	Rating  int       `json:"review_rating"`
	Created time.Time `json:"review_date"`
}

// Point 为序列中的一个采样点。
type Point struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// Series 为按日期严格升序排列的 (日期, 均值) 序列。
type Series []Point

// AppSummary 汇总单个应用的评论统计与派生序列。
type AppSummary struct {
	AppID      string    `json:"app_id"`
	AppName    string    `json:"app_name"`
	Count      int       `json:"review_count"`
	MeanRating float64   `json:"mean_rating"`
	FirstAt    time.Time `json:"first_review_at"`
	LastAt     time.Time `json:"last_review_at"`
	Cumulative Series    `json:"cumulative"`
	Rolling    Series    `json:"rolling"`
	Monthly    Series    `json:"monthly"`
}

// Export 为 data.json 顶层结构。
type Export struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowDays  int          `json:"rolling_window_days"`
	Apps        []AppSummary `json:"apps"`
}
