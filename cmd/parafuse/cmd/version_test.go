package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerdesk/parafuse/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "parafuse", "Output should contain program name")
	assert.Contains(t, output, version.Version, "Output should contain version")
	assert.Contains(t, output, "commit", "Output should contain commit info")
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--short"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := strings.TrimSpace(buf.String())
	assert.Equal(t, version.Version, output, "Short output should be just the version")
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	err := cmd.Execute()

	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
