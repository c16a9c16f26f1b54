package logger

import (
	"time"

	"go.uber.org/zap"
)

// Campos estándar. Usar estos constructores mantiene las keys consistentes entre paquetes.

// ─── HTTP ───

func RequestID(v string) zap.Field { return zap.String("request_id", v) }
func Method(v string) zap.Field    { return zap.String("method", v) }
func Path(v string) zap.Field      { return zap.String("path", v) }
func Status(v int) zap.Field       { return zap.Int("status", v) }
func ClientIP(v string) zap.Field  { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

// DurationMs duración en milisegundos.
func DurationMs(d time.Duration) zap.Field { return zap.Int64("duration_ms", d.Milliseconds()) }

// ─── Identidad ───

func UserID(v string) zap.Field { return zap.String("user_id", v) }

// Subject es el id de la identidad externa (sub del token).
func Subject(v string) zap.Field { return zap.String("subject", v) }

// Email se loguea enmascarado.
func Email(v string) zap.Field { return zap.String("email", MaskEmail(v)) }

// ─── Providers ───

func Capability(v string) zap.Field { return zap.String("capability", v) }
func Provider(v string) zap.Field   { return zap.String("provider", v) }
func Code(v string) zap.Field       { return zap.String("code", v) }

// ─── Genéricos ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }

// Re-exports para no importar zap en cada paquete.
var (
	String   = zap.String
	Int      = zap.Int
	Bool     = zap.Bool
	Duration = zap.Duration
)

// Err campo de error; nil produce zap.Skip.
func Err(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.Error(err)
}
