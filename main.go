// 命令行入口：
// - 解析 flags 与 settings.yaml
// - 初始化日志、HTTP 客户端、数据库
// - 支持按应用名搜索（多候选时交互选择）、批量抓取评论、导出 CSV/JSON 与打印序列
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"go-review-trends/internal/appstore"
	"go-review-trends/internal/config"
	"go-review-trends/internal/export"
	"go-review-trends/internal/fetch"
	"go-review-trends/internal/logx"
	"go-review-trends/internal/model"
	"go-review-trends/internal/orchestrate"
	"go-review-trends/internal/playstore"
	"go-review-trends/internal/resolve"
	"go-review-trends/internal/reviews"
	"go-review-trends/internal/series"
	"go-review-trends/internal/store"
)

// source 聚合一个数据源的搜索与翻页两种能力。
type source interface {
	resolve.Searcher
	reviews.Pager
}

func main() {
	var (
		configPath = flag.String("config", "settings.yaml", "path to settings.yaml")
		appNames   = flag.String("apps", "", "comma-separated app names to search and fetch")
		appIDs     = flag.String("ids", "", "comma-separated app ids to fetch directly")
		maxArg     = flag.Int("max", 0, "max reviews per app (0 = use config; config 0 = fetch all)")
		seriesArg  = flag.String("series", "", "print a stored series: cumulative|rolling|monthly")
		exportPath = flag.String("export", "", "write summary json (stats + series) to this path")
	)
	flag.Parse()

	// 1) 加载配置并初始化日志
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logx.Init(cfg.LogLevel, cfg.LogFormat, cfg.LogLocale, cfg.LogColor)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	// 2) 打开数据库
	st, err := store.OpenSQLite(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	// Ctrl-C 触发取消：翻页间隔与应用之间都会检查
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *appNames != "" || *appIDs != "" {
		if err := fetchAndStore(ctx, cfg, st, *appNames, *appIDs, *maxArg); err != nil {
			logx.Errorf("抓取失败：%v", err)
			os.Exit(1)
		}
	}

	if *seriesArg != "" {
		if err := printSeries(ctx, cfg, st, *seriesArg); err != nil {
			logx.Errorf("输出序列失败：%v", err)
			os.Exit(1)
		}
	}

	if *exportPath != "" {
		if err := export.ToJSON(ctx, st, cfg.RollingWindowDays, *exportPath); err != nil {
			log.Fatalf("export json: %v", err)
		}
		logx.Infof("已导出 %s", *exportPath)
	}

	if *appNames == "" && *appIDs == "" && *seriesArg == "" && *exportPath == "" {
		flag.Usage()
	}
}

// fetchAndStore 解析应用名、执行抓取编排并导出每应用 CSV。
func fetchAndStore(ctx context.Context, cfg *config.Config, st *store.SQLite, appNames, appIDs string, maxArg int) error {
	// 搜索重试由 resolver 负责（至多一次），客户端本身不重试
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    25 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}
	src := newSource(cl, cfg)

	var apps []model.Application
	if appNames != "" {
		resolver := resolve.New(src)
		chooser := bufio.NewReader(os.Stdin)
		for _, name := range splitList(appNames) {
			candidates, err := resolver.Resolve(ctx, name)
			if err != nil {
				logx.Errorf("搜索 %q 失败：%v", name, err)
				continue
			}
			if len(candidates) == 0 {
				logx.Warnf("未找到应用：%q", name)
				continue
			}
			app, ok := chooseApp(chooser, name, candidates)
			if !ok {
				logx.Warnf("已跳过 %q", name)
				continue
			}
			apps = append(apps, app)
		}
	}
	for _, id := range splitList(appIDs) {
		apps = append(apps, model.Application{ID: id, Market: cfg.Market})
	}
	if len(apps) == 0 {
		return fmt.Errorf("no apps to fetch")
	}

	max := cfg.MaxReviews
	if maxArg > 0 {
		max = maxArg
	}
	if max == 0 {
		max = reviews.NoLimit
		logx.Warnf("未设置抓取上限：将一直翻页直到上游没有更多数据，可能非常耗时")
	}

	fetcher := reviews.New(src, reviews.Options{
		Attempts: cfg.Concurrency.Attempts,
		Pacing:   time.Duration(cfg.PacingMillis) * time.Millisecond,
	})
	runner := orchestrate.New(fetcher, st, cfg.Concurrency.Apps)
	results := runner.Run(ctx, apps, max, func(appID string, s orchestrate.Status) {
		logx.Debugf("状态：%s %s 已抓=%d %s", appID, s.State, s.Fetched, s.Message)
	})

	failed := 0
	for _, app := range apps {
		out := results[app.ID]
		if out.Err != nil {
			failed++
			continue
		}
		path, err := export.ToCSV(ctx, st, app.ID, cfg.OutputDir)
		if err != nil {
			logx.Warnf("导出 CSV 失败：%s %v", app.ID, err)
			continue
		}
		logx.Infof("已导出 %s", path)
	}
	if failed == len(apps) {
		return fmt.Errorf("all %d apps failed", failed)
	}
	if failed > 0 {
		logx.Warnf("部分应用失败：%d/%d", failed, len(apps))
	}
	return nil
}

// newSource 按配置选择数据源实现。
func newSource(cl *fetch.Client, cfg *config.Config) source {
	if cfg.Source == "appstore" {
		return appstore.New(cl, appstore.Options{Market: cfg.Market})
	}
	return playstore.New(cl, playstore.Options{Market: cfg.Market, Lang: cfg.Lang})
}

// chooseApp 在多候选时列出编号让用户选择；单候选直接采用。
func chooseApp(in *bufio.Reader, name string, candidates []model.Application) (model.Application, bool) {
	if len(candidates) == 1 {
		return candidates[0], true
	}
	fmt.Printf("%q 有多个候选：\n", name)
	for i, c := range candidates {
		fmt.Printf("  [%d] %s（%s）\n", i+1, c.Name, c.ID)
	}
	fmt.Print("请输入编号（回车取 1，0 跳过）：")
	line, err := in.ReadString('\n')
	if err != nil {
		return candidates[0], true
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return candidates[0], true
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 0 || n > len(candidates) {
		return candidates[0], true
	}
	if n == 0 {
		return model.Application{}, false
	}
	return candidates[n-1], true
}

// printSeries 对库中应用逐个计算并打印指定类型的序列。
func printSeries(ctx context.Context, cfg *config.Config, st *store.SQLite, kindArg string) error {
	kind, ok := series.ParseKind(kindArg)
	if !ok {
		return fmt.Errorf("unknown series kind: %s", kindArg)
	}
	apps, err := st.Apps(ctx)
	if err != nil {
		return err
	}
	if len(apps) == 0 {
		logx.Warnf("数据库中还没有任何评论，先用 -apps 抓取")
		return nil
	}
	dateFmt := "2006-01-02"
	if kind == series.Monthly {
		dateFmt = "2006-01"
	}
	for _, app := range apps {
		rs, err := st.Load(ctx, app.ID)
		if err != nil {
			return err
		}
		name := app.Name
		if name == "" {
			name = app.ID
		}
		fmt.Printf("# %s（%s，%d 条评论，%s）\n", name, app.ID, len(rs), kind)
		for _, p := range series.Aggregate(rs, kind, cfg.RollingWindowDays) {
			fmt.Printf("%s\t%.4f\n", p.Date.Format(dateFmt), p.Value)
		}
	}
	return nil
}

// splitList 切分逗号分隔的参数并去掉空项。
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
