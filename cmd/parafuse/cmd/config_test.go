package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerdesk/parafuse/internal/config"
)

func chtemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { _ = os.Chdir(oldDir) })
	return tmpDir
}

func TestConfigInitCmd_CreatesFile(t *testing.T) {
	tmpDir := chtemp(t)

	cmd := newConfigInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())

	path := filepath.Join(tmpDir, ".parafuse.yaml")
	_, err := os.Stat(path)
	require.NoError(t, err, "config file should exist")

	// The written file must load back as a valid config.
	cfg, err := config.Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "weighted", cfg.Search.VotingMethod)
}

func TestConfigInitCmd_RefusesOverwrite(t *testing.T) {
	chtemp(t)

	require.NoError(t, os.WriteFile(".parafuse.yaml", []byte("search:\n  limit: 3\n"), 0o644))

	cmd := newConfigInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInitCmd_ForceOverwrites(t *testing.T) {
	chtemp(t)

	require.NoError(t, os.WriteFile(".parafuse.yaml", []byte("search:\n  limit: 3\n"), 0o644))

	cmd := newConfigInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--force"})

	require.NoError(t, cmd.Execute())

	cfg, err := config.Load(".")
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Search.Limit, cfg.Search.Limit)
}

func TestConfigShowCmd_JSON(t *testing.T) {
	chtemp(t)

	cmd := newConfigShowCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	require.NoError(t, cmd.Execute())

	var cfg config.Config
	require.NoError(t, json.Unmarshal(buf.Bytes(), &cfg))
	assert.Equal(t, "weighted", cfg.Search.VotingMethod)
}

func TestConfigShowCmd_YAMLDefault(t *testing.T) {
	chtemp(t)

	cmd := newConfigShowCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "voting_method: weighted")
}
