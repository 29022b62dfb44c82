package logx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

const (
	maxLine  = 3500
	maxValue = 600
)

// render turns a zerolog JSON line into "[LEVEL] message k=v ...". With
// multiline each field goes on its own "- k=v" line, which reads better in
// chat alerts. Lines that are not JSON are passed through trimmed.
func render(p []byte, multiline bool) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return clip(string(p), maxLine)
	}

	var b strings.Builder
	if lvl, _ := m[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := m[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	sep := " "
	if multiline {
		sep = "\n- "
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
		default:
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s%s=%s", sep, k, clip(fmt.Sprint(m[k]), maxValue))
	}
	return clip(b.String(), maxLine)
}

// clip cuts s to at most n bytes, marking the cut with "...".
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
