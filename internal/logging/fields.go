package logging

import (
	"log/slog"
	"time"
)

// Field names shared by every command and the grading service.
const (
	FieldRequestID  = "request_id"
	FieldScenario   = "scenario"
	FieldSeed       = "seed"
	FieldInstanceID = "instance_id"
	FieldSource     = "source"
	FieldDomain     = "domain"
	FieldScore      = "score"
	FieldTrainee    = "trainee"
	FieldRows       = "rows"
	FieldPath       = "path"
	FieldMethod     = "method"
	FieldStatus     = "status"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
)

func Scenario(name string) slog.Attr {
	return slog.String(FieldScenario, name)
}

func Seed(seed int64) slog.Attr {
	return slog.Int64(FieldSeed, seed)
}

func InstanceID(id string) slog.Attr {
	return slog.String(FieldInstanceID, id)
}

func Source(src string) slog.Attr {
	return slog.String(FieldSource, src)
}

func Domain(domain string) slog.Attr {
	return slog.String(FieldDomain, domain)
}

func Score(score int) slog.Attr {
	return slog.Int(FieldScore, score)
}

func Trainee(id string) slog.Attr {
	return slog.String(FieldTrainee, id)
}

func Rows(n int) slog.Attr {
	return slog.Int(FieldRows, n)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns the elapsed time in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns an attribute for err; a nil error logs as an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
