package logger

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
)

type RollbarConfig struct {
	Token       string
	Environment string
	Host        string
	CodeVersion string
}

// RollbarLogger reports every entry to Rollbar and mirrors it to std.
type RollbarLogger struct {
	std StdLogger
}

var _ Logger = (*RollbarLogger)(nil)

func NewRollbar(std *log.Logger, conf RollbarConfig) *RollbarLogger {
	rollbar.SetToken(conf.Token)
	rollbar.SetEnvironment(conf.Environment)
	rollbar.SetServerHost(conf.Host)
	rollbar.SetCodeVersion(conf.CodeVersion)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: *NewStd(std)}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close blocks until queued reports are sent.
func (l RollbarLogger) Close() {
	rollbar.Wait()
}

// prepare expects: msg | error, map[string]interface{}, Person
func (l RollbarLogger) prepare(msg string, args []interface{}) []interface{} {
	var personSet bool
	out := make([]interface{}, 0, len(args)+1)
	out = append(out, msg)
	for _, arg := range args {
		if p, ok := arg.(Person); ok {
			if !personSet {
				rollbar.SetPerson(p.ID, p.Username, p.Email)
				personSet = true
			}
			continue
		}
		out = append(out, arg)
	}
	if !personSet {
		rollbar.ClearPerson()
	}
	return out
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	rollbar.Debug(l.prepare(msg, args)...)
	l.std.Debug(msg, args...)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	rollbar.Info(l.prepare(msg, args)...)
	l.std.Info(msg, args...)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	rollbar.Warning(l.prepare(msg, args)...)
	l.std.Warn(msg, args...)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	rollbar.Error(l.prepare(msg, args)...)
	l.std.Error(msg, args...)
}
