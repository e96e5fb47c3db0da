package logs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogDir(t *testing.T) {
	logDir, err := GetLogDir()
	require.NoError(t, err)
	require.NotEmpty(t, logDir)

	assert.Contains(t, logDir, "connresult")
	assert.True(t, filepath.IsAbs(logDir))
}

func TestLinuxLogDirHonorsXDGStateHome(t *testing.T) {
	if runtime.GOOS != osLinux || os.Getuid() == 0 {
		t.Skip("requires non-root linux")
	}

	stateDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", stateDir)

	logDir, err := GetLogDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(stateDir, "connresult", "logs"), logDir)
}

func TestWindowsLogDirFallsBackToUserProfile(t *testing.T) {
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("USERPROFILE", filepath.Join("C:", "Users", "tester"))

	logDir, err := getWindowsLogDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("C:", "Users", "tester", "AppData", "Local", "connresult", "logs"), logDir)
}

func TestGetLogFilePathWithDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")

	path, err := GetLogFilePathWithDir(dir, "main.log")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "main.log"), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
