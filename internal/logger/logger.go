package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

const (
	LevelTrace slog.Level = -8
	LevelFatal slog.Level = 12
)

// output 由同一个 AsyncHandler 派生出的所有 handler 共享
type output struct {
	ch          chan []byte
	writer      io.Writer
	currentDay  int      // 当前日志日期（day of year）
	currentFile *os.File // 当前日志文件
	basePath    string   // 日志文件基础路径
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

type AsyncHandler struct {
	out      *output
	attrs    []slog.Attr
	group    string
	logLevel slog.Level
}

func NewAsyncHandler(basePath string, logLevel slog.Level) *AsyncHandler {
	out := &output{
		ch:       make(chan []byte, 1024),
		basePath: basePath,
		writer:   os.Stdout,
	}
	if err := out.rotateIfNeeded(); err != nil {
		fmt.Fprintf(os.Stderr, "log file unavailable, writing to stdout only: %v\n", err)
	}
	out.cleanOldLogs()
	out.wg.Add(1)
	go out.startWorker()
	return &AsyncHandler{out: out, logLevel: logLevel}
}

func (o *output) cleanOldLogs() {
	files, _ := filepath.Glob(o.basePath + "/*.log")
	now := time.Now()

	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) > 30*24*time.Hour {
			_ = os.Remove(f) // 删除30天前的日志
		}
	}
}

// 初始化或轮转日志文件
func (o *output) rotateIfNeeded() error {
	now := time.Now()
	currentDay := now.YearDay()

	if currentDay == o.currentDay && o.currentFile != nil {
		return nil
	}

	if o.currentFile != nil {
		if err := o.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		o.currentFile = nil
	}

	logPath := fmt.Sprintf("%s/%s.log", o.basePath, now.Format("2006-01-02"))
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	o.currentFile = f
	o.currentDay = currentDay
	o.writer = io.MultiWriter(os.Stdout, o.currentFile)
	return nil
}

func (o *output) startWorker() {
	defer o.wg.Done()
	for data := range o.ch {
		_ = o.rotateIfNeeded()
		_, _ = o.writer.Write(data)
	}
}

func (h *AsyncHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel
}

func levelString(level slog.Level) string {
	switch level {
	case LevelTrace:
		return color.WhiteString("TRACE")
	case slog.LevelDebug:
		return color.MagentaString(level.String())
	case slog.LevelInfo:
		return color.BlueString(level.String())
	case slog.LevelWarn:
		return color.YellowString(level.String())
	case slog.LevelError:
		return color.RedString(level.String())
	case LevelFatal:
		return color.HiRedString("FATAL")
	}
	return level.String()
}

func (h *AsyncHandler) Handle(_ context.Context, r slog.Record) error {
	// 基础格式：时间 | 级别 | 消息
	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		levelString(r.Level),
		color.CyanString(r.Message),
	)

	prefix := ""
	if h.group != "" {
		prefix = h.group + "."
	}

	for _, attr := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s%s=%v", prefix, attr.Key, attr.Value))
	}

	r.Attrs(func(attr slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s%s=%v", prefix, attr.Key, attr.Value))
		return true
	})

	line += "\n"

	h.Write([]byte(line))
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &AsyncHandler{
		out:      h.out,
		attrs:    newAttrs,
		group:    h.group,
		logLevel: h.logLevel,
	}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		out:      h.out,
		attrs:    h.attrs,
		group:    name,
		logLevel: h.logLevel,
	}
}

func (h *AsyncHandler) Write(p []byte) {
	// 拷贝数据避免竞态
	pb := make([]byte, len(p))
	copy(pb, p)
	h.out.ch <- pb
}

func (h *AsyncHandler) Close() error {
	h.out.closeOnce.Do(func() {
		close(h.out.ch)
	})
	h.out.wg.Wait()
	if f := h.out.currentFile; f != nil {
		h.out.currentFile = nil
		_ = f.Sync()
		return f.Close()
	}
	return nil
}

type ShutdownCallback struct {
	handler *AsyncHandler
}

func (lc *ShutdownCallback) Invoke(ctx context.Context) error {
	return lc.handler.Close()
}

// Init installs the async handler as the default slog logger. Trace output
// is only enabled in debug mode.
func Init(debugMode bool, basePath string) *ShutdownCallback {
	if basePath == "" {
		basePath = "logs"
	}
	level := slog.LevelInfo
	if debugMode {
		level = LevelTrace
	}
	handler := NewAsyncHandler(basePath, level)
	slog.SetDefault(slog.New(handler))
	slog.Debug("Logger initialized")
	return &ShutdownCallback{handler: handler}
}

func Trace(msg string, v ...interface{}) {
	slog.Log(context.Background(), LevelTrace, msg, v...)
}

func TraceF(msg string, v ...interface{}) {
	slog.Log(context.Background(), LevelTrace, fmt.Sprintf(msg, v...))
}

func Debug(msg string, v ...interface{}) {
	slog.Debug(msg, v...)
}

func DebugF(msg string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(msg, v...))
}

func Info(msg string, v ...interface{}) {
	slog.Info(msg, v...)
}

func InfoF(msg string, v ...interface{}) {
	slog.Info(fmt.Sprintf(msg, v...))
}

func Warn(msg string, v ...interface{}) {
	slog.Warn(msg, v...)
}

func WarnF(msg string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(msg, v...))
}

func Error(msg string, v ...interface{}) {
	slog.Error(msg, v...)
}

func ErrorF(msg string, v ...interface{}) {
	slog.Error(fmt.Sprintf(msg, v...))
}

func Fatal(msg string, v ...interface{}) {
	slog.Log(context.Background(), LevelFatal, msg, v...)
}

func FatalF(msg string, v ...interface{}) {
	slog.Log(context.Background(), LevelFatal, fmt.Sprintf(msg, v...))
}
