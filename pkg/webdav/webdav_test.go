package webdav

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "captured_20250101_000000.jpg"), []byte("jpeg"), 0o644))

	srv := httptest.NewServer(Handler(dir))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/captured_20250101_000000.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(body))

	req, err := http.NewRequest("PROPFIND", srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Depth", "1")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusMultiStatus, resp2.StatusCode)
}

func TestShareStartStop(t *testing.T) {
	s := New(context.Background(), 0, t.TempDir())
	assert.False(t, s.Running())
	assert.False(t, s.Stop())
	assert.True(t, s.Start())
	assert.False(t, s.Start())
	assert.True(t, s.Running())
	assert.True(t, s.Stop())
	assert.False(t, s.Running())
}
