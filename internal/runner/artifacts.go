package runner

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/catalystcommunity/executor-driver/internal/logging"
)

// harvestArtifacts walks hostDir (the host-side bind-mount location of
// the job's artifacts directory) and returns an absolute_path ->
// base64 content map keyed by the in-container path
// (containerDir/relative-path, per spec §6's "absolute_path ->
// base64(contents)" artifacts encoding), dropping (not truncating) any
// file whose size exceeds maxBytes. A file of exactly maxBytes is
// included (spec §8 boundary behavior 9: the cap is inclusive).
func harvestArtifacts(hostDir, containerDir string, maxBytes int64) (map[string]string, error) {
	artifacts := make(map[string]string)

	if _, err := os.Stat(hostDir); os.IsNotExist(err) {
		return artifacts, nil
	}

	err := filepath.WalkDir(hostDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat-ing artifact %s: %w", p, err)
		}
		if info.Size() > maxBytes {
			logging.Log.WithField("path", p).
				WithField("size", info.Size()).
				WithField("max_size", maxBytes).
				Warn("artifact exceeds size cap, dropping")
			return nil
		}

		content, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading artifact %s: %w", p, err)
		}

		relPath, err := filepath.Rel(hostDir, p)
		if err != nil {
			return fmt.Errorf("computing relative artifact path for %s: %w", p, err)
		}
		key := path.Join(containerDir, filepath.ToSlash(relPath))
		artifacts[key] = base64.StdEncoding.EncodeToString(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking artifacts directory %s: %w", hostDir, err)
	}

	return artifacts, nil
}
