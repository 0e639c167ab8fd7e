package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/domainkit/internal/api"
	"github.com/mesh-intelligence/domainkit/internal/config"
	"github.com/mesh-intelligence/domainkit/internal/paths"
	"github.com/mesh-intelligence/domainkit/internal/sqlite"
)

type workspace struct {
	configDir string
	dataDir   string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	t.Chdir(root)
	for _, key := range []string{paths.EnvConfigDir, paths.EnvDataDir, paths.EnvSchema, "DOMAINKIT_BACKEND", "DOMAINKIT_LISTEN"} {
		t.Setenv(key, "")
	}
	return workspace{
		configDir: filepath.Join(root, "conf"),
		dataDir:   filepath.Join(root, "data"),
	}
}

func (w workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", w.configDir, "--data-dir", w.dataDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	w := newWorkspace(t)
	out, err := w.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "domainkit v"+Version)
	assert.Contains(t, out, modulePath)
}

func TestInit(t *testing.T) {
	w := newWorkspace(t)

	out, err := w.run(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote example schema")
	assert.Contains(t, out, "domainkit initialized: 2 entity types in sqlite")

	assert.FileExists(t, filepath.Join(w.configDir, config.FileName))
	assert.FileExists(t, filepath.Join(w.configDir, paths.DefaultSchemaName))
	assert.FileExists(t, filepath.Join(w.dataDir, sqlite.DatabaseFile))
	assert.FileExists(t, filepath.Join(w.dataDir, "item.jsonl"))
	assert.FileExists(t, filepath.Join(w.dataDir, "category.jsonl"))

	out, err = w.run(t, "init")
	require.NoError(t, err, "init is idempotent")
	assert.NotContains(t, out, "wrote example schema")
}

func TestCheck(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "init")
	require.NoError(t, err)

	out, err := w.run(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "domain example")
	assert.Contains(t, out, "item")

	out, err = w.run(t, "--json", "check")
	require.NoError(t, err)
	var info api.DomainInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, []string{"category", "item"}, info.Entities)

	bad := filepath.Join(w.configDir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("domain: bad\nentities:\n  - id: x\n    properties:\n      - {id: y, kind: nope}\n"), 0o644))
	out, err = w.run(t, "--schema", bad, "check")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
	assert.Contains(t, out, "✗")
}

func TestDescribe(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "init")
	require.NoError(t, err)

	out, err := w.run(t, "--json", "describe", "item")
	require.NoError(t, err)
	var infos []api.EntityInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "items", infos[0].Table)
	assert.Equal(t, []string{"id"}, infos[0].PrimaryKey)

	out, err = w.run(t, "describe")
	require.NoError(t, err)
	assert.Contains(t, out, "category")
	assert.Contains(t, out, "-> category(category_code)")

	_, err = w.run(t, "describe", "nothing")
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestDDL(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "init")
	require.NoError(t, err)

	out, err := w.run(t, "ddl", "--dialect", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS items")
	assert.Contains(t, out, "GENERATED BY DEFAULT AS IDENTITY")

	out, err = w.run(t, "ddl")
	require.NoError(t, err)
	assert.Contains(t, out, "AUTOINCREMENT", "dialect follows the configured backend")

	_, err = w.run(t, "ddl", "--dialect", "oracle")
	require.Error(t, err)
}

func TestExport(t *testing.T) {
	w := newWorkspace(t)
	_, err := w.run(t, "init")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(w.dataDir, "category.jsonl"),
		[]byte(`{"domain":"example","entity":"category","values":[{"id":"code","value":"tools"},{"id":"name","value":"Tools"}]}`+"\n"), 0o644))

	out, err := w.run(t, "export", "--out", "dump")
	require.NoError(t, err)
	assert.Contains(t, out, "exported example")

	data, err := os.ReadFile(filepath.Join("dump", "category.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Tools"`)
	assert.FileExists(t, filepath.Join("dump", "item.jsonl"))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitUserError, exitCode(errors.New("plain")))
	assert.Equal(t, exitUserError, exitCode(userError("bad input")))
	assert.Equal(t, exitSysError, exitCode(sysError("disk: %w", os.ErrPermission)))
	assert.ErrorIs(t, sysError("disk: %w", os.ErrPermission), os.ErrPermission)
}
