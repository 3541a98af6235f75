package logger

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdLoggerWritesLevelAndArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewStd(log.New(&buf, "", 0))
	l.Error("submit failed", errors.New("db down"), Person{ID: "s1"})

	out := buf.String()
	assert.Contains(t, out, "[ERROR] submit failed")
	assert.Contains(t, out, "db down")
	assert.Contains(t, out, "s1")
}

func TestRollbarLoggerMirrorsToStd(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbar(log.New(&buf, "", 0), RollbarConfig{Environment: "test"})
	l.Enable(false)
	l.Warn("overdue attempt", map[string]interface{}{"attempt_id": "a1"}, Person{ID: "s1"})

	assert.Contains(t, buf.String(), "[WARN] overdue attempt")
	assert.Contains(t, buf.String(), "a1")
}
