package runner

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
	"github.com/catalystcommunity/executor-driver/internal/retry"
)

// fastRetryUploader builds an uploader whose retry backoff is
// effectively instantaneous, for tests that deliberately exercise the
// retry path and don't want to pay its real delays.
func fastRetryUploader() *uploader {
	return &uploader{
		httpClient: http.DefaultClient,
		retryConfig: &retry.Config{
			MaxRetries:     3,
			InitialDelay:   time.Millisecond,
			MaxDelay:       time.Millisecond,
			BackoffFactor:  1,
			JitterFraction: 0,
		},
	}
}

func TestUploader_SingleFilePut(t *testing.T) {
	var gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "out.json"), []byte(`{"ok":true}`), 0o644))

	u := newUploader()
	results, err := u.upload(context.Background(), protocol.SingleFilePutUpload{URL: srv.URL, RelativePath: "out.json"}, workDir)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", results["result"])
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, `{"ok":true}`, string(gotBody))
}

func TestUploader_ZipAndHTTPPost(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("a"), 0o644))

	u := newUploader()
	results, err := u.upload(context.Background(), protocol.ZipAndHTTPPostUpload{URL: srv.URL, FormFields: map[string]string{"token": "x"}}, workDir)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", results["result"])

	mediaType, _, err := mime.ParseMediaType(gotContentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
}

func TestUploader_MultiUploadWithSystemOutput(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "r.json"), []byte("{}"), 0o644))

	u := newUploader()
	out := protocol.MultiUpload{
		Uploads: map[string]protocol.OutputUpload{
			"result": protocol.SingleFilePutUpload{URL: srv.URL + "/result", RelativePath: "r.json"},
		},
		SystemOutput: protocol.ZipAndHTTPPutUpload{URL: srv.URL + "/system"},
	}

	results, err := u.upload(context.Background(), out, workDir)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", results["result"])
	assert.Equal(t, "uploaded", results["system_output"])
	assert.ElementsMatch(t, []string{"/result", "/system"}, paths)
}

func TestUploader_FailureExhaustsRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "f.bin"), []byte("x"), 0o644))

	u := fastRetryUploader()
	_, err := u.upload(context.Background(), protocol.SingleFilePostUpload{URL: srv.URL, RelativePath: "f.bin"}, workDir)
	require.Error(t, err)
	assert.Equal(t, 4, calls) // initial attempt + 3 configured retries, all exhausted
}

// TestUploader_RetriesThroughTransientBadRequestsThenSucceeds
// reproduces spec.md §8 scenario S4: the upload collaborator returns
// 400, 400, 200 and the driver's upload must still succeed, with
// exactly 3 POSTs observed.
func TestUploader_RetriesThroughTransientBadRequestsThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "f.bin"), []byte("x"), 0o644))

	u := fastRetryUploader()
	results, err := u.upload(context.Background(), protocol.SingleFilePostUpload{URL: srv.URL, RelativePath: "f.bin"}, workDir)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", results["result"])
	assert.Equal(t, 3, calls)
}
