package ps

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	s, err := Snapshot(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Greater(t, s.DiskFree, uint64(0))
	require.GreaterOrEqual(t, s.DiskUsedPercent, 0.0)
	require.LessOrEqual(t, s.DiskUsedPercent, 100.0)
}

func TestDiskUsageMissingPath(t *testing.T) {
	_, err := DiskUsage("/path/does/not/exist")
	require.Error(t, err)
}
