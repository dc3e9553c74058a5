// 包 logx 是对标准库 slog 的薄封装：
// - 支持级别/格式/语言/颜色配置
// - 提供 pretty 中文输出（[调试]/[信息]/[警告]/[错误]）
// - 通过 Debugf/Infof/Warnf/Errorf 暴露格式化入口
package logx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Init 根据 level/format/locale/colorMode 初始化全局日志器。
// 采用 slog 默认 Handler（json/text）或内置 PrettyHandler（中文美化）。
func Init(level, format, locale, colorMode string) {
	lv := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lv}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = NewPrettyHandler(os.Stdout, lv, locale, colorMode)
	}
	slog.SetDefault(slog.New(handler))
}

// silentLevel 高于一切内置级别，用于 LOG_LEVEL=none。
const silentLevel slog.Level = 100

// ParseLevel 将字符串级别解析为 slog.Level。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "silent", "off":
		return silentLevel
	default:
		return slog.LevelInfo
	}
}

// 便捷函数：格式化并按级别输出
func Debugf(format string, v ...any) { slog.Debug(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...any)  { slog.Info(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...any)  { slog.Warn(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...any) { slog.Error(fmt.Sprintf(format, v...)) }

// levelSpec 描述单个级别的展示方式（标签与 ANSI 颜色码）。
type levelSpec struct {
	zh, en, color string
}

var levelSpecs = map[slog.Level]levelSpec{
	slog.LevelDebug: {"[调试]", "[DEBUG]", "90"},
	slog.LevelInfo:  {"[信息]", "[INFO]", "36"},
	slog.LevelWarn:  {"[警告]", "[WARN]", "33"},
	slog.LevelError: {"[错误]", "[ERROR]", "31"},
}

// PrettyHandler：最小可用的中文美化输出（可选彩色），仅用于人读。
type PrettyHandler struct {
	w     io.Writer
	min   slog.Level
	zh    bool
	color bool
	mu    *sync.Mutex
	attrs []slog.Attr
}

// NewPrettyHandler 创建美化 Handler，locale 以 zh 开头时使用中文标签。
func NewPrettyHandler(w io.Writer, min slog.Level, locale, colorMode string) slog.Handler {
	if w == nil {
		w = os.Stdout
	}
	if locale == "" {
		locale = "zh-CN"
	}
	return &PrettyHandler{
		w:     w,
		min:   min,
		zh:    strings.HasPrefix(strings.ToLower(locale), "zh"),
		color: shouldColor(w, colorMode),
		mu:    &sync.Mutex{},
	}
}

// Enabled 根据配置的最低级别判定是否输出。
func (h *PrettyHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.min && h.min < silentLevel
}

// Handle 格式化输出：时间 + 等级 + 消息 + 扁平化属性
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	var buf bytes.Buffer
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(h.label(r.Level))
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&buf, " %s=%s", a.Key, a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, " %s=%s", a.Key, a.Value.String())
		return true
	})
	buf.WriteByte('\n')
	_, err := h.w.Write(buf.Bytes())
	return err
}

// WithAttrs 附加属性（本项目未大量使用）。
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

// WithGroup 属性分组：pretty 输出不分组，直接返回自身副本。
func (h *PrettyHandler) WithGroup(string) slog.Handler {
	cp := *h
	return &cp
}

// label 根据语言返回等级标签，按需包裹 ANSI 颜色码。
func (h *PrettyHandler) label(l slog.Level) string {
	sp, ok := levelSpecs[l]
	if !ok {
		return fmt.Sprintf("[L%d]", l)
	}
	s := sp.en
	if h.zh {
		s = sp.zh
	}
	if h.color {
		s = "\x1b[" + sp.color + "m" + s + "\x1b[0m"
	}
	return s
}

// shouldColor 判断是否启用颜色：遵循 LOG_COLOR 与 NO_COLOR。
func shouldColor(w io.Writer, mode string) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "auto", "":
		// 简单的 TTY 检测：仅在字符设备上启用彩色输出
		if f, ok := w.(*os.File); ok {
			if fi, err := f.Stat(); err == nil {
				return (fi.Mode() & os.ModeCharDevice) != 0
			}
		}
		return false
	default:
		return false
	}
}
