// Package sentry 提供 Sentry 错误监控的封装
// 用于上报迁移回调中的 panic，同时避免泄露本地路径等隐私信息
package sentry

import (
	"context"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	// initialized 标记 Sentry 是否已初始化
	initialized bool
	// initMu 保护初始化状态
	initMu sync.RWMutex
)

// 敏感关键字列表，用于过滤敏感数据
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "key", "token", "auth", "credential",
}

var sensitivePairPattern = regexp.MustCompile(`(?i)(` + strings.Join(quoteAll(sensitiveKeywords), "|") + `)\s*[=:]\s*[^\s,}"\]]+`)

// Init 初始化 Sentry SDK
// dsn 为 Sentry DSN，留空则禁用
// environment 为环境标识（development/production）
// release 为版本号
func Init(dsn, environment, release string) error {
	if dsn == "" {
		return nil // DSN 为空时不初始化
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		BeforeSend:       beforeSendHook,
		SampleRate:       1.0,
	})
	if err != nil {
		return err
	}

	initMu.Lock()
	initialized = true
	initMu.Unlock()

	return nil
}

// IsInitialized 返回 Sentry 是否已初始化
func IsInitialized() bool {
	initMu.RLock()
	defer initMu.RUnlock()
	return initialized
}

// Flush 刷新所有待发送事件（程序退出前调用）
func Flush(timeout time.Duration) {
	if !IsInitialized() {
		return
	}
	sentry.Flush(timeout)
}

// RecoverWithContext 用于 goroutine 的 panic 恢复
// 应在 goroutine 开始时使用 defer 调用
// 注意：必须先调用 recover()，再检查 Sentry 状态，否则 panic 不会被捕获
func RecoverWithContext(ctx context.Context) {
	err := recover()
	if err == nil {
		return
	}

	if IsInitialized() {
		hub := sentry.GetHubFromContext(ctx)
		if hub == nil {
			hub = sentry.CurrentHub()
		}
		if hub != nil {
			hub.RecoverWithContext(ctx, err)
		}
	}
	// 不重新 panic，让 goroutine 优雅退出
}

// Recover 用于 goroutine 的 panic 恢复（无 context 版本）
func Recover() {
	err := recover()
	if err == nil {
		return
	}

	if IsInitialized() {
		hub := sentry.CurrentHub()
		if hub != nil {
			hub.Recover(err)
		}
	}
	// 不重新 panic，让 goroutine 优雅退出
}

// CaptureException 捕获异常
func CaptureException(err error) {
	if !IsInitialized() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Go 启动一个新的 goroutine 并自动添加 panic 恢复
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// GoWithContext 启动一个新的 goroutine 并自动添加 panic 恢复（带 Context）
func GoWithContext(ctx context.Context, f func(context.Context)) {
	go func() {
		defer RecoverWithContext(ctx)
		f(ctx)
	}()
}

// beforeSendHook 在发送事件前清理敏感数据
func beforeSendHook(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	if event.Message != "" {
		event.Message = sanitizeString(event.Message)
	}

	for i := range event.Exception {
		if event.Exception[i].Value != "" {
			event.Exception[i].Value = sanitizeString(event.Exception[i].Value)
		}
		if event.Exception[i].Stacktrace != nil {
			for j := range event.Exception[i].Stacktrace.Frames {
				frame := &event.Exception[i].Stacktrace.Frames[j]
				frame.Vars = sanitizeMap(frame.Vars)
			}
		}
	}

	event.Extra = sanitizeMap(event.Extra)
	for key, ctxData := range event.Contexts {
		event.Contexts[key] = sanitizeMap(ctxData)
	}

	return event
}

// sanitizeString 隐去用户目录与 key=value 形式的敏感值
func sanitizeString(s string) string {
	result := s
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		result = strings.ReplaceAll(result, home, "~")
	}
	return sensitivePairPattern.ReplaceAllString(result, "$1=[REDACTED]")
}

// sanitizeMap 清理 map 中的敏感数据
func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}

	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		if isSensitiveKey(key) {
			result[key] = "[REDACTED]"
		} else if strVal, ok := value.(string); ok {
			result[key] = sanitizeString(strVal)
		} else if mapVal, ok := value.(map[string]interface{}); ok {
			result[key] = sanitizeMap(mapVal)
		} else {
			result[key] = value
		}
	}
	return result
}

// isSensitiveKey 检查键名是否为敏感键
func isSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(keyLower, keyword) {
			return true
		}
	}
	return false
}

func quoteAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = regexp.QuoteMeta(w)
	}
	return out
}
