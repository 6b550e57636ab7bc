package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testComponents = `package components

component: base: {
	id:              1
	version:         1
	source:          "40"
	computed_result: "40"
}

component: answer: {
	id:      2
	version: 1
	source:  "dep_1_v1 + 2"
	dependencies: ["1@1"]
}

component: add: {
	id:      3
	version: 1
	kind:    "function"
	source:  "a + b"
	arguments: ["a", {name: "b", default: 10}]
}
`

// writeDefs writes a CUE definitions directory holding files and returns
// its path.
func writeDefs(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cue.mod"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cue.mod", "module.cue"),
		[]byte("module: \"sandcalc.test/components\"\nlanguage: version: \"v0.11.0\"\n"), 0o644))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

// execute runs cmd with args and returns its stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
