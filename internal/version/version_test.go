package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetDefaults(t *testing.T) {
	info := Get()

	require.Equal(t, "dev", info.Version)
	require.NotEmpty(t, info.Commit)
	require.NotEmpty(t, info.Date)
	require.Equal(t, runtime.Version(), info.GoVersion)
	require.Equal(t, info.Version, Version())
}

func TestString(t *testing.T) {
	info := Info{Version: "1.2.0", Commit: "abc123", Date: "2026-01-01", GoVersion: "go1.24.0"}
	require.Equal(t, "version=1.2.0 commit=abc123 date=2026-01-01 go=go1.24.0", info.String())
}
