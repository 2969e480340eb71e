package runner

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

func buildTestZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestVolumeMaterializer_Inline(t *testing.T) {
	zipData := buildTestZip(t, map[string]string{"hello.txt": "world"})
	vol := protocol.InlineVolume{Contents: base64.StdEncoding.EncodeToString(zipData)}

	destDir := t.TempDir()
	m := newVolumeMaterializer(10 * 1024 * 1024)
	require.NoError(t, m.materialize(context.Background(), vol, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(content))
}

func TestVolumeMaterializer_ZipURLOverSizeCapFails(t *testing.T) {
	zipData := buildTestZip(t, map[string]string{"big.bin": string(make([]byte, 2048))})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(zipData)
	}))
	defer srv.Close()

	m := newVolumeMaterializer(100) // well below the archive size
	err := m.materialize(context.Background(), protocol.ZipURLVolume{URL: srv.URL}, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Input volume too large")
}

func TestVolumeMaterializer_SingleFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	m := newVolumeMaterializer(10 * 1024 * 1024)
	vol := protocol.SingleFileVolume{URL: srv.URL, RelativePath: "nested/file.bin"}
	require.NoError(t, m.materialize(context.Background(), vol, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "nested/file.bin"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(content))
}

func TestVolumeMaterializer_MultiVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("sub-content"))
	}))
	defer srv.Close()

	destDir := t.TempDir()
	m := newVolumeMaterializer(10 * 1024 * 1024)
	vol := protocol.MultiVolume{Volumes: []protocol.NamedSubVolume{
		{RelativePath: "a", Volume: protocol.SingleFileVolume{URL: srv.URL, RelativePath: "f.bin"}},
	}}
	require.NoError(t, m.materialize(context.Background(), vol, destDir))

	content, err := os.ReadFile(filepath.Join(destDir, "a", "f.bin"))
	require.NoError(t, err)
	assert.Equal(t, "sub-content", string(content))
}

func TestExtractZipBytes_RejectsZipSlip(t *testing.T) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("gotcha"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	err = extractZipBytes(buf.Bytes(), t.TempDir(), 1024)
	assert.Error(t, err)
}
