package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleFormatterLine(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogrusLogger("debug", "", WithOutput(&buf))
	require.NoError(t, err)

	logger.WithField("vehicle", "Drone1").WithField("frame", 3).Warnf("lidar returned %d values", 2)

	line := buf.String()
	assert.Contains(t, line, "[WAR] lidar returned 2 values")
	assert.True(t, strings.HasSuffix(line, " frame=3 vehicle=Drone1\n"), line)
}

func TestCRLFOption(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogrusLogger("info", "", WithOutput(&buf), WithCRLF())
	require.NoError(t, err)

	logger.Infof("armed")
	assert.True(t, strings.HasSuffix(buf.String(), "[INF] armed\r\n"))
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogrusLogger("chatty", "", WithOutput(&buf))
	require.NoError(t, err)

	logger.Debugf("hidden")
	logger.Infof("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestLogFileWritten(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger, err := NewLogrusLogger("info", dir, WithOutput(&buf))
	require.NoError(t, err)

	logger.Infof("landing")

	data, err := os.ReadFile(filepath.Join(dir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "landing")
	assert.Contains(t, buf.String(), "landing")
}
