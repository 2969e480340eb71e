package runner

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
	"github.com/catalystcommunity/executor-driver/internal/retry"
)

type uploader struct {
	httpClient  *http.Client
	retryConfig *retry.Config
}

func newUploader() *uploader {
	return &uploader{httpClient: http.DefaultClient, retryConfig: retry.DefaultConfig()}
}

// upload delivers the contents of workDir per spec, returning a
// destination-label -> outcome report (spec §6 upload_results).
func (u *uploader) upload(ctx context.Context, out protocol.OutputUpload, workDir string) (map[string]string, error) {
	results := make(map[string]string)
	if err := u.uploadInto(ctx, out, workDir, "result", results); err != nil {
		return nil, err
	}
	return results, nil
}

func (u *uploader) uploadInto(ctx context.Context, out protocol.OutputUpload, workDir, label string, results map[string]string) error {
	switch v := out.(type) {
	case protocol.ZipAndHTTPPostUpload:
		return u.uploadZip(ctx, workDir, v.URL, http.MethodPost, v.FormFields, label, results)
	case protocol.ZipAndHTTPPutUpload:
		return u.uploadZip(ctx, workDir, v.URL, http.MethodPut, nil, label, results)
	case protocol.SingleFilePostUpload:
		return u.uploadSingleFile(ctx, filepath.Join(workDir, v.RelativePath), v.URL, http.MethodPost, label, results)
	case protocol.SingleFilePutUpload:
		return u.uploadSingleFile(ctx, filepath.Join(workDir, v.RelativePath), v.URL, http.MethodPut, label, results)
	case protocol.MultiUpload:
		for name, sub := range v.Uploads {
			if err := u.uploadInto(ctx, sub, workDir, name, results); err != nil {
				return err
			}
		}
		if v.SystemOutput != nil {
			if err := u.uploadInto(ctx, v.SystemOutput, workDir, "system_output", results); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported output_upload type %q", out.OutputUploadType())
	}
}

func (u *uploader) uploadZip(ctx context.Context, workDir, url, method string, formFields map[string]string, label string, results map[string]string) error {
	zipData, err := zipDirectory(workDir)
	if err != nil {
		return fmt.Errorf("zipping %s for upload: %w", workDir, err)
	}

	var body []byte
	var contentType string
	if method == http.MethodPost {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		for k, v := range formFields {
			if err := mw.WriteField(k, v); err != nil {
				return fmt.Errorf("writing form field %s: %w", k, err)
			}
		}
		part, err := mw.CreateFormFile("file", "output.zip")
		if err != nil {
			return fmt.Errorf("creating multipart file part: %w", err)
		}
		if _, err := part.Write(zipData); err != nil {
			return fmt.Errorf("writing zip payload: %w", err)
		}
		if err := mw.Close(); err != nil {
			return fmt.Errorf("closing multipart writer: %w", err)
		}
		body = buf.Bytes()
		contentType = mw.FormDataContentType()
	} else {
		body = zipData
		contentType = "application/zip"
	}

	err = u.doWithRetry(ctx, method, url, contentType, body, label)
	if err != nil {
		results[label] = "failed"
		return err
	}
	results[label] = "uploaded"
	return nil
}

func (u *uploader) uploadSingleFile(ctx context.Context, path, url, method, label string, results map[string]string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		results[label] = "failed"
		return fmt.Errorf("reading %s for upload: %w", path, err)
	}

	if err := u.doWithRetry(ctx, method, url, "application/octet-stream", data, label); err != nil {
		results[label] = "failed"
		return err
	}
	results[label] = "uploaded"
	return nil
}

func (u *uploader) doWithRetry(ctx context.Context, method, url, contentType string, body []byte, operation string) error {
	return retry.WithBackoff(ctx, u.retryConfig, "upload-"+operation, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := u.httpClient.Do(req)
		if err != nil {
			return &retry.RetryableError{Err: err, Retryable: true, Reason: "transport error"}
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		return retry.ClassifyHTTPStatus(resp.StatusCode)
	})
}

func zipDirectory(dir string) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(rel)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
