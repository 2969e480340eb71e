package protocol

import (
	"encoding/json"
	"fmt"
)

// VolumeType discriminates the Volume tagged union on the wire via the
// volume_type field (spec §6, Design Notes).
type VolumeType string

const (
	VolumeTypeInline        VolumeType = "inline"
	VolumeTypeZipURL        VolumeType = "zip_url"
	VolumeTypeSingleFile    VolumeType = "single_file"
	VolumeTypeMultiVolume   VolumeType = "multi_volume"
	VolumeTypeHuggingFace   VolumeType = "huggingface_volume"
)

// Volume is the closed sum type the driver routes to the runner. Only
// the types declared in this file implement it.
type Volume interface {
	VolumeType() VolumeType
	isVolume()
}

// InlineVolume carries a base64-encoded zip inline in the request.
type InlineVolume struct {
	Contents string `json:"contents"`
}

func (InlineVolume) VolumeType() VolumeType { return VolumeTypeInline }
func (InlineVolume) isVolume()              {}

// ZipURLVolume points at a URL serving a zip archive.
type ZipURLVolume struct {
	URL string `json:"url"`
}

func (ZipURLVolume) VolumeType() VolumeType { return VolumeTypeZipURL }
func (ZipURLVolume) isVolume()              {}

// SingleFileVolume points at a URL serving a single file, materialized
// under the given relative path inside the job mount.
type SingleFileVolume struct {
	URL         string `json:"url"`
	RelativePath string `json:"relative_path"`
}

func (SingleFileVolume) VolumeType() VolumeType { return VolumeTypeSingleFile }
func (SingleFileVolume) isVolume()              {}

// MultiVolume composes several sub-volumes, each mounted at its own
// relative path inside the job mount.
type MultiVolume struct {
	Volumes []NamedSubVolume `json:"volumes"`
}

func (MultiVolume) VolumeType() VolumeType { return VolumeTypeMultiVolume }
func (MultiVolume) isVolume()              {}

// NamedSubVolume is one member of a MultiVolume.
type NamedSubVolume struct {
	RelativePath string `json:"relative_path"`
	Volume       Volume `json:"volume"`
}

// HuggingFaceVolume snapshots a model-hub repository into the job mount.
type HuggingFaceVolume struct {
	RepoID        string   `json:"repo_id"`
	Revision      string   `json:"revision"`
	RepoType      string   `json:"repo_type,omitempty"`
	AllowPatterns []string `json:"allow_patterns,omitempty"`
}

func (HuggingFaceVolume) VolumeType() VolumeType { return VolumeTypeHuggingFace }
func (HuggingFaceVolume) isVolume()              {}

// ErrUnknownVolumeType is returned when a volume_type tag does not
// match any known variant. Per Design Notes, unknown tags must surface
// as a driver-level failure at deserialization time, never be silently
// ignored.
type ErrUnknownVolumeType struct {
	Tag string
}

func (e *ErrUnknownVolumeType) Error() string {
	return fmt.Sprintf("unknown volume_type %q", e.Tag)
}

type volumeEnvelope struct {
	VolumeType VolumeType      `json:"volume_type"`
	Body       json.RawMessage `json:"-"`
}

// DecodeVolume decodes a tagged-union volume payload from raw JSON.
func DecodeVolume(raw json.RawMessage) (Volume, error) {
	var tag struct {
		VolumeType VolumeType `json:"volume_type"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, fmt.Errorf("decoding volume envelope: %w", err)
	}

	switch tag.VolumeType {
	case VolumeTypeInline:
		var v InlineVolume
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding inline volume: %w", err)
		}
		return v, nil
	case VolumeTypeZipURL:
		var v ZipURLVolume
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding zip_url volume: %w", err)
		}
		return v, nil
	case VolumeTypeSingleFile:
		var v SingleFileVolume
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding single_file volume: %w", err)
		}
		return v, nil
	case VolumeTypeMultiVolume:
		var raw2 struct {
			Volumes []struct {
				RelativePath string          `json:"relative_path"`
				Volume       json.RawMessage `json:"volume"`
			} `json:"volumes"`
		}
		if err := json.Unmarshal(raw, &raw2); err != nil {
			return nil, fmt.Errorf("decoding multi_volume: %w", err)
		}
		mv := MultiVolume{Volumes: make([]NamedSubVolume, 0, len(raw2.Volumes))}
		for _, sub := range raw2.Volumes {
			subVol, err := DecodeVolume(sub.Volume)
			if err != nil {
				return nil, err
			}
			mv.Volumes = append(mv.Volumes, NamedSubVolume{RelativePath: sub.RelativePath, Volume: subVol})
		}
		return mv, nil
	case VolumeTypeHuggingFace:
		var v HuggingFaceVolume
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decoding huggingface_volume: %w", err)
		}
		return v, nil
	default:
		return nil, &ErrUnknownVolumeType{Tag: string(tag.VolumeType)}
	}
}
