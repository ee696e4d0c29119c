package text

import "strings"

// Truncate 按字节截断并追加省略号，用于日志场景。
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Preview 按 rune 截断，保证多字节文本不被截成半个字符。
// 用于 provenance 预览等对外展示的场景。
func Preview(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
