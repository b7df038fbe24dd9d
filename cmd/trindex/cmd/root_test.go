package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleData = `<http://example.org/a> <http://example.org/p> <http://example.org/b> .
<http://example.org/c> <http://example.org/p> <http://example.org/d> .
<http://example.org/a> <http://example.org/name> "A" .
`

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}

func TestLoadQueryRemove(t *testing.T) {
	for _, backend := range []string{"file", "badger"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			data := filepath.Join(dir, "data")
			file := writeFile(t, dir, "sample.nt", sampleData)
			global := []string{"--data-dir", data, "--backend", backend}

			out, err := run(t, "", append([]string{"load", file}, global...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "loaded 3 triple(s)")

			out, err = run(t, "", append([]string{"query", "--subject", "<http://example.org/a>"}, global...)...)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{
				`<http://example.org/a> <http://example.org/p> <http://example.org/b> .`,
				`<http://example.org/a> <http://example.org/name> "A" .`,
			}, lines(out))

			out, err = run(t, "", append([]string{"query", "-p", "<http://example.org/p>", "-o", "<http://example.org/d>"}, global...)...)
			require.NoError(t, err)
			assert.Equal(t, []string{`<http://example.org/c> <http://example.org/p> <http://example.org/d> .`}, lines(out))

			removal := `<http://example.org/a> <http://example.org/p> <http://example.org/b> .` + "\n"
			out, err = run(t, removal, append([]string{"remove", "-"}, global...)...)
			require.NoError(t, err)
			assert.Contains(t, out, "removed 1 triple(s) from -")

			out, err = run(t, "", append([]string{"query", "--subject", "<http://example.org/a>"}, global...)...)
			require.NoError(t, err)
			assert.Equal(t, []string{`<http://example.org/a> <http://example.org/name> "A" .`}, lines(out))

			out, err = run(t, "", append([]string{"indexes"}, global...)...)
			require.NoError(t, err)
			assert.NotEmpty(t, strings.TrimSpace(out))
		})
	}
}

func TestQuery_RequiresATerm(t *testing.T) {
	_, err := run(t, "", "query", "--data-dir", t.TempDir())
	assert.ErrorContains(t, err, "at least one of")

	_, err = run(t, "", "query", "--subject", "not-a-term", "--data-dir", t.TempDir())
	assert.ErrorContains(t, err, "invalid --subject")
}

func TestLoad_MalformedInput(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "bad.nt", "<http://example.org/a> <http://example.org/p> .\n")

	_, err := run(t, "", "load", file, "--data-dir", filepath.Join(dir, "data"), "--backend", "file")
	assert.ErrorContains(t, err, "malformed")
}

func TestLoad_SmallQueue(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	for i := range 50 {
		sb.WriteString("<http://example.org/s> <http://example.org/p> \"")
		sb.WriteString(strings.Repeat("x", i+1))
		sb.WriteString("\" .\n")
	}
	file := writeFile(t, dir, "many.nt", sb.String())
	cfg := writeFile(t, dir, "trindex.yaml", "backend: file\nindexer:\n  max_pending: 7\n  max_batch_size: 3\n")
	data := filepath.Join(dir, "data")

	out, err := run(t, "", "load", file, "--config", cfg, "--data-dir", data)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 50 triple(s)")

	out, err = run(t, "", "query", "-s", "<http://example.org/s>", "--config", cfg, "--data-dir", data)
	require.NoError(t, err)
	assert.Len(t, lines(out), 50)

	out, err = run(t, "", "query", "-s", "<http://example.org/s>", "--limit", "5", "--config", cfg, "--data-dir", data)
	require.NoError(t, err)
	assert.Len(t, lines(out), 5)
}

func TestConfigCmd(t *testing.T) {
	out, err := run(t, "", "config", "--backend", "file", "--data-dir", "/srv/idx", "--debug")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: file")
	assert.Contains(t, out, "data_dir: /srv/idx")
	assert.Contains(t, out, "level: debug")

	_, err = run(t, "", "config", "--backend", "postgres")
	assert.ErrorContains(t, err, "backend")
}

func TestDemo(t *testing.T) {
	out, err := run(t, "", "demo", "--data-dir", t.TempDir(), "--backend", "file")
	require.NoError(t, err)
	assert.Contains(t, out, "Who knows carol:")
	assert.Contains(t, out, `<http://example.org/bob> <http://xmlns.com/foaf/0.1/knows> <http://example.org/carol> .`)
	assert.Contains(t, out, "(3 triple(s))")
	assert.Contains(t, out, "(2 triple(s))")
}

func TestFileBackendIsLocked(t *testing.T) {
	dir := t.TempDir()
	opts := &rootOptions{dataDir: dir, backend: "file"}
	cmd := NewRootCmd()
	cmd.SetErr(&bytes.Buffer{})

	s, err := opts.open(cmd)
	require.NoError(t, err)
	defer s.Close()

	_, err = run(t, "", "indexes", "--data-dir", dir, "--backend", "file")
	assert.ErrorContains(t, err, "locked")
}
