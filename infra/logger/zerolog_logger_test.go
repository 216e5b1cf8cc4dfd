package logger

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZerologLoggerMethods(t *testing.T) {
	assert.NoError(t, os.Setenv("APP_ENV", "dev"))
	defer func() { assert.NoError(t, os.Unsetenv("APP_ENV")) }()
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"trains": 3})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLoggerLevelFromEnv(t *testing.T) {
	assert.NoError(t, os.Setenv("RAIL_LOG_LEVEL", "debug"))
	defer func() { assert.NoError(t, os.Unsetenv("RAIL_LOG_LEVEL")) }()
	l := NewZerologLogger("test")
	assert.NotNil(t, l)
	l.Debugf("visible at debug level")
}

func TestNopLoggerIsSilent(t *testing.T) {
	var l Logger = NopLogger{}
	l.Debugf("debug")
	l.Debugw("debug", nil)
	l.Infof("info")
	l.Warnf("warn")
	l.Errorf("error")
}
