package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

func TestDecodeAsJSON_InitialJobRequestFromYAMLMap(t *testing.T) {
	var spec localJobSpec
	raw := []byte(`
initial:
  job_uuid: job-local-1
  docker_image: alpine:latest
  timeout_seconds: 60
full:
  docker_run_cmd: ["echo", "hi"]
  volume:
    volume_type: inline
    contents: ""
  output_upload:
    output_upload_type: single_file_put
    relative_path: result.txt
    url: http://example.invalid/upload
`)
	require.NoError(t, yaml.Unmarshal(raw, &spec))

	initial, err := decodeAsJSON[protocol.InitialJobRequest](spec.Initial)
	require.NoError(t, err)
	assert.Equal(t, "job-local-1", initial.JobUUID)
	assert.Equal(t, "alpine:latest", initial.DockerImage)
	require.NotNil(t, initial.TimeoutSeconds)
	assert.Equal(t, 60, *initial.TimeoutSeconds)

	full, err := decodeAsJSON[protocol.FullJobRequest](spec.Full)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hi"}, full.DockerRunCmd)
	assert.IsType(t, protocol.InlineVolume{}, full.Volume)
	assert.IsType(t, protocol.SingleFilePutUpload{}, full.OutputUpload)
}

func TestDecodeAsJSON_MissingOptionalSectionDecodesZeroValue(t *testing.T) {
	full, err := decodeAsJSON[protocol.FullJobRequest](nil)
	require.NoError(t, err)
	assert.Empty(t, full.DockerRunCmd)
}
