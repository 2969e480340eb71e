package runner

import (
	"archive/zip"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
	"github.com/catalystcommunity/executor-driver/internal/retry"
)

// maxVolumeBytes bounds how much a zip/single-file download is allowed
// to write to disk before it's treated as a download failure (spec §8
// boundary behavior: oversized volume).
type volumeMaterializer struct {
	httpClient     *http.Client
	maxVolumeBytes int64
}

func newVolumeMaterializer(maxVolumeBytes int64) *volumeMaterializer {
	return &volumeMaterializer{httpClient: http.DefaultClient, maxVolumeBytes: maxVolumeBytes}
}

// materialize writes vol's contents under destDir, returning a
// JobFailureDownloadFailed-flavored error (via the caller's wrapping)
// on any I/O or size-cap violation.
func (m *volumeMaterializer) materialize(ctx context.Context, vol protocol.Volume, destDir string) error {
	switch v := vol.(type) {
	case protocol.InlineVolume:
		return m.materializeInline(v, destDir)
	case protocol.ZipURLVolume:
		return m.materializeZipURL(ctx, v.URL, destDir)
	case protocol.SingleFileVolume:
		return m.materializeSingleFile(ctx, v.URL, filepath.Join(destDir, v.RelativePath))
	case protocol.MultiVolume:
		for _, sub := range v.Volumes {
			subDir := filepath.Join(destDir, sub.RelativePath)
			if err := os.MkdirAll(subDir, 0o755); err != nil {
				return fmt.Errorf("creating sub-volume directory %s: %w", subDir, err)
			}
			if err := m.materialize(ctx, sub.Volume, subDir); err != nil {
				return err
			}
		}
		return nil
	case protocol.HuggingFaceVolume:
		return m.materializeHuggingFace(ctx, v, destDir)
	default:
		return fmt.Errorf("unsupported volume type %q", vol.VolumeType())
	}
}

// materializeInline decodes a base64 zip archive directly into destDir.
func (m *volumeMaterializer) materializeInline(v protocol.InlineVolume, destDir string) error {
	decoded, err := base64.StdEncoding.DecodeString(v.Contents)
	if err != nil {
		return fmt.Errorf("decoding inline volume contents: %w", err)
	}
	return extractZipBytes(decoded, destDir, m.maxVolumeBytes)
}

func (m *volumeMaterializer) materializeZipURL(ctx context.Context, url, destDir string) error {
	data, err := m.download(ctx, url)
	if err != nil {
		return err
	}
	return extractZipBytes(data, destDir, m.maxVolumeBytes)
}

func (m *volumeMaterializer) materializeSingleFile(ctx context.Context, url, destPath string) error {
	data, err := m.download(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", destPath, err)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

// hfAPIBase is overridable in tests.
var hfAPIBase = "https://huggingface.co"

// materializeHuggingFace lists the repo tree via the public Hugging
// Face API and downloads each file matching AllowPatterns (or every
// file, if none given) through the repo's resolve URL.
func (m *volumeMaterializer) materializeHuggingFace(ctx context.Context, v protocol.HuggingFaceVolume, destDir string) error {
	repoType := v.RepoType
	if repoType == "" {
		repoType = "models"
	}
	revision := v.Revision
	if revision == "" {
		revision = "main"
	}

	treeURL := fmt.Sprintf("%s/api/%s/%s/tree/%s", hfAPIBase, repoType, v.RepoID, revision)
	data, err := m.download(ctx, treeURL)
	if err != nil {
		return fmt.Errorf("listing huggingface repo %s: %w", v.RepoID, err)
	}

	var entries []struct {
		Type string `json:"type"`
		Path string `json:"path"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parsing huggingface repo listing: %w", err)
	}

	for _, entry := range entries {
		if entry.Type != "file" {
			continue
		}
		if !matchesAnyPattern(entry.Path, v.AllowPatterns) {
			continue
		}
		fileURL := fmt.Sprintf("%s/%s/resolve/%s/%s", hfAPIBase, v.RepoID, revision, entry.Path)
		if err := m.materializeSingleFile(ctx, fileURL, filepath.Join(destDir, entry.Path)); err != nil {
			return err
		}
	}
	return nil
}

func matchesAnyPattern(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// download fetches url, retrying transport errors and any non-2xx
// status under retry.DefaultConfig (up to three retries), enforcing
// maxVolumeBytes. An oversized body is not retried.
func (m *volumeMaterializer) download(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := retry.WithBackoff(ctx, retry.DefaultConfig(), "volume-download", func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building download request: %w", err)
		}
		resp, err := m.httpClient.Do(req)
		if err != nil {
			return &retry.RetryableError{Err: err, Retryable: true, Reason: "transport error"}
		}
		defer resp.Body.Close()

		if classified := retry.ClassifyHTTPStatus(resp.StatusCode); classified != nil {
			return classified
		}

		limited := io.LimitReader(resp.Body, m.maxVolumeBytes+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return fmt.Errorf("reading download body: %w", err)
		}
		if int64(len(data)) > m.maxVolumeBytes {
			return fmt.Errorf("Input volume too large: exceeds maximum size of %d bytes", m.maxVolumeBytes)
		}
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// extractZipBytes extracts a zip archive into destDir, rejecting
// zip-slip paths and enforcing the total uncompressed size cap.
func extractZipBytes(data []byte, destDir string, maxBytes int64) error {
	reader, err := zip.NewReader(strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		return fmt.Errorf("opening volume zip archive: %w", err)
	}

	var total int64
	for _, f := range reader.File {
		cleanName := filepath.Clean(f.Name)
		if strings.HasPrefix(cleanName, "..") || filepath.IsAbs(cleanName) {
			return fmt.Errorf("zip entry %q escapes destination directory", f.Name)
		}
		destPath := filepath.Join(destDir, cleanName)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", destPath, err)
			}
			continue
		}

		total += int64(f.UncompressedSize64)
		if total > maxBytes {
			return fmt.Errorf("Input volume too large: exceeds maximum size of %d bytes", maxBytes)
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", destPath, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("opening zip entry %s: %w", f.Name, err)
		}
		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			rc.Close()
			return fmt.Errorf("creating %s: %w", destPath, err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return fmt.Errorf("extracting %s: %w", destPath, copyErr)
		}
	}
	return nil
}
