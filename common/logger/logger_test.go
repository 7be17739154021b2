package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringToLogLevel(t *testing.T) {
	a := assert.New(t)

	a.Equal(ERROR, StringToLogLevel("error"))
	a.Equal(WARN, StringToLogLevel("WARN"))
	a.Equal(INFO, StringToLogLevel("Info"))
	a.Equal(DEBUG, StringToLogLevel("debug"))
	a.Equal(TRACE, StringToLogLevel("trace"))
	a.Equal(INFO, StringToLogLevel("foo"))
}

func TestLogLevel_String(t *testing.T) {
	a := assert.New(t)

	a.Equal("ERROR", ERROR.String())
	a.Equal("TRACE", TRACE.String())
	a.Equal("UNKNOWN", LogLevel(42).String())
}

func TestInitializeWithFile(t *testing.T) {
	a := assert.New(t)
	defer Initialize(ERROR)

	logFile := filepath.Join(t.TempDir(), "viewer.log")
	InitializeWithFile(DEBUG, logFile)

	a.True(IsLogLevel(DEBUG))
	a.False(IsLogLevel(TRACE))

	Debug.Printf("hello %s", "file")

	contents, err := os.ReadFile(logFile)
	a.Nil(err)
	a.Contains(string(contents), "hello file")
}
