package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifactsDirOrDefault(t *testing.T) {
	assert.Equal(t, "/artifacts", artifactsDirOrDefault(""))
	assert.Equal(t, "/out", artifactsDirOrDefault("/out"))
}
