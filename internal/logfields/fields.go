package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyTrigger    = "trigger"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyRef        = "ref"
	KeyURL        = "url"
	KeyRevision   = "revision"
	KeyPattern    = "pattern"
	KeyMethod     = "method"
	KeyRemoteAddr = "remote_addr"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Trigger(t string) slog.Attr       { return slog.String(KeyTrigger, t) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func File(f string) slog.Attr          { return slog.String(KeyFile, f) }
func Ref(r string) slog.Attr           { return slog.String(KeyRef, r) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Revision(rev string) slog.Attr    { return slog.String(KeyRevision, rev) }
func Pattern(p string) slog.Attr       { return slog.String(KeyPattern, p) }
func Method(m string) slog.Attr        { return slog.String(KeyMethod, m) }
func RemoteAddr(a string) slog.Attr    { return slog.String(KeyRemoteAddr, a) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
