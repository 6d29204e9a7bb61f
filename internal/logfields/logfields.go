package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyNode       = "node"
	KeyLevel      = "level"
	KeyTitle      = "title"
	KeyTemplate   = "template"
	KeySource     = "source"
	KeyOutput     = "output"
	KeyCount      = "count"
	KeyURL        = "url"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Level(l int) slog.Attr           { return slog.Int(KeyLevel, l) }
func Title(t string) slog.Attr        { return slog.String(KeyTitle, t) }
func Template(p string) slog.Attr     { return slog.String(KeyTemplate, p) }
func Source(p string) slog.Attr       { return slog.String(KeySource, p) }
func Output(p string) slog.Attr       { return slog.String(KeyOutput, p) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Node renders a node path; the root's empty path is shown as "/".
func Node(p string) slog.Attr {
	if p == "" {
		p = "/"
	}
	return slog.String(KeyNode, p)
}

// Since is DurationMS measured from start.
func Since(start time.Time) slog.Attr {
	return DurationMS(float64(time.Since(start).Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
