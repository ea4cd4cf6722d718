package logger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Caps for client-controlled values written to the log
const (
	maxPathLen  = 500
	maxIDLen    = 128
	maxErrLen   = 1000
	maxValueLen = 2000
)

// Clean drops invalid UTF-8 and non-printing characters other than
// whitespace, then cuts s to at most limit bytes on a rune boundary.
func Clean(s string, limit int) string {
	if s == "" {
		return ""
	}
	if limit <= 0 {
		limit = maxValueLen
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, strings.ToValidUTF8(s, ""))
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}

// Path is the request path field
func Path(path string) zap.Field {
	return zap.String("path", Clean(path, maxPathLen))
}

// Subject is the identity provider subject of a token
func Subject(sub string) zap.Field {
	return zap.String("subject", Clean(sub, maxIDLen))
}

// ClientIP is the caller address as reported by proxy headers
func ClientIP(ip string) zap.Field {
	return zap.String("ip", Clean(ip, maxIDLen))
}

// Err is zap.Error with the message cleaned, since token and upstream errors
// can echo client input. A nil error is skipped.
func Err(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", Clean(err.Error(), maxErrLen))
}
