package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func seedProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeProjectFile(t, dir, "auth.go", `package auth

// Authenticate validates the session token against the store.
func Authenticate(token string) bool {
	return token != ""
}
`)
	writeProjectFile(t, dir, "README.md", `# Demo

Authentication is handled by the auth package.
`)
	return dir
}

func TestIndexCmd_IndexesProject(t *testing.T) {
	dir := seedProject(t)

	cmd := newIndexCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, "--no-tui"})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "Complete")
	assert.DirExists(t, filepath.Join(dir, ".quarry"))
	assert.FileExists(t, filepath.Join(dir, ".quarry", "vectors.hnsw"))
}

func TestIndexCmd_ForceRebuild(t *testing.T) {
	dir := seedProject(t)

	for _, args := range [][]string{
		{dir, "--no-tui"},
		{dir, "--no-tui", "--force"},
	} {
		cmd := newIndexCmd()
		buf := &bytes.Buffer{}
		cmd.SetOut(buf)
		cmd.SetErr(buf)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute(), "args: %v", args)
		assert.Contains(t, buf.String(), "Complete")
	}
}

func TestIndexCmd_MissingPath(t *testing.T) {
	cmd := newIndexCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "does-not-exist"), "--no-tui"})

	assert.Error(t, cmd.Execute())
}
