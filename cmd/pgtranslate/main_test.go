package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spandigital/pgtranslate/internal/cli"
)

const customersModel = `entities:
- name: Customer
  table: Customers
  key: [Id]
  properties:
  - {name: Id, type: int32}
  - {name: Name, type: string}
  - {name: City, type: string, nullable: true}
`

// run executes the command tree in a directory without a config file.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))
	t.Chdir(dir)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		translateModel, translateEntity, translateVariable = "", "", ""
		cfgFile, configShowSource = "", false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestTranslateCommand(t *testing.T) {
	modelFile := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(modelFile, []byte(customersModel), 0o644))

	out, err := run(t, "translate", "--model", modelFile, "--entity", "Customer", "--var", "c",
		`c.Name.startsWith("A") && c.Id > minId`)
	require.NoError(t, err)
	assert.Contains(t, out, "-- @minId bigint\n")
	assert.Contains(t, out, `FROM "Customers" AS c`)
	assert.Contains(t, out, `c."Name" LIKE 'A%'`)
	assert.Contains(t, out, "@minId")
}

func TestTranslateCommandErrors(t *testing.T) {
	modelFile := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(modelFile, []byte(customersModel), 0o644))

	tests := []struct {
		name string
		args []string
		code cli.ExitCode
	}{
		{
			name: "missing model file",
			args: []string{"translate", "--model", filepath.Join(t.TempDir(), "nope.yaml"), "--entity", "Customer", "true"},
			code: cli.ExitModel,
		},
		{
			name: "no entity",
			args: []string{"translate", "--model", modelFile, "true"},
			code: cli.ExitConfig,
		},
		{
			name: "unknown entity",
			args: []string{"translate", "--model", modelFile, "--entity", "Nope", "true"},
			code: cli.ExitTranslate,
		},
		{
			name: "not a predicate",
			args: []string{"translate", "--model", modelFile, "--entity", "Customer", "--var", "c", "c.Name"},
			code: cli.ExitTranslate,
		},
		{
			name: "explicit config missing",
			args: []string{"--config", "/nonexistent/pgtranslate.yaml", "translate", "true"},
			code: cli.ExitConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, cli.CodeOf(err))
		})
	}
}

func TestConfigShowCommand(t *testing.T) {
	file := filepath.Join(t.TempDir(), "pgtranslate.yaml")
	require.NoError(t, os.WriteFile(file, []byte("translate:\n  entity: Customer\n"), 0o644))

	out, err := run(t, "--config", file, "config", "show", "--source")
	require.NoError(t, err)
	assert.Contains(t, out, "Config file: "+file)
	assert.Contains(t, out, "entity: Customer")
	assert.Contains(t, out, "sslmode: prefer")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "pgtranslate "+buildVersion()+"\n", out)
}
