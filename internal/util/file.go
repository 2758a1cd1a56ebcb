package util

import (
	"path/filepath"
	"strings"
)

// StripCodecSuffix 去掉浏览器 MediaRecorder 附加的 ";codecs=..." 注解
func StripCodecSuffix(name string) string {
	if i := strings.Index(name, ";"); i >= 0 {
		return name[:i]
	}
	return name
}

// MediaExt 小写扩展名（含点），兼容 codec 注解
func MediaExt(name string) string {
	return strings.ToLower(filepath.Ext(strings.TrimSpace(StripCodecSuffix(name))))
}

// SanitizeFilename 只保留文件名部分，去掉路径和不安全字符
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(StripCodecSuffix(name), "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}

// SafeToken 用于拼接到临时文件名中的客户端标识
func SafeToken(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			b.WriteRune(r)
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}
