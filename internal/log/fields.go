package log

import (
	"log/slog"
	"time"
)

// Attribute keys shared across packages.
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldSessionID  = "session_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldYear       = "year"
	FieldMonth      = "month"
	FieldGeneration = "generation"
	FieldEndpoint   = "endpoint"
	FieldFigure     = "figure"
	FieldCacheKey   = "cache_key"
	FieldEvent      = "event"
)

const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentView     = "view"
	ComponentAPI      = "api"
	ComponentEvents   = "events"
	ComponentCache    = "cache"
	ComponentSecurity = "security"
	ComponentTrace    = "trace"
	ComponentBackend  = "backend"
	ComponentAuth     = "auth"
	ComponentTemplate = "template"
)

const (
	OpRender   = "render"
	OpFetch    = "fetch"
	OpMutate   = "mutate"
	OpValidate = "validate"
	OpLogin    = "login"
	OpRegister = "register"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// Err is the error attribute, or an empty attribute slog drops when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(FieldError, err.Error())
}

// Millis records d under FieldDuration in whole milliseconds.
func Millis(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Period tags a render pass. A zero month means the whole year.
func Period(year, month int, generation uint64) []any {
	attrs := []any{slog.Int(FieldYear, year)}
	if month != 0 {
		attrs = append(attrs, slog.Int(FieldMonth, month))
	}
	return append(attrs, slog.Uint64(FieldGeneration, generation))
}
