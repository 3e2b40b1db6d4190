package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/libsearch/internal/testutil"
)

type testHolding struct {
	Library string `json:"library"`
	Title   string `json:"title"`
}

func TestFileExists(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFileString("result.json", "{}")
	env.MkdirAll("json")

	assert.True(t, FileExists(env.Path("result.json")))
	assert.False(t, FileExists(env.Path("missing.json")))
	assert.False(t, FileExists(env.Path("json")), "directories are not files")
}

func TestWriteFileWithOverwrite(t *testing.T) {
	testCases := []struct {
		name      string
		existing  string
		overwrite bool
		written   bool
		want      string
	}{
		{name: "new file", overwrite: false, written: true, want: "new"},
		{name: "existing file with overwrite", existing: "old", overwrite: true, written: true, want: "new"},
		{name: "existing file without overwrite", existing: "old", overwrite: false, written: false, want: "old"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := testutil.NewTestEnv(t)
			path := env.Path("out", "nested", "file.txt")
			if tc.existing != "" {
				env.WriteFileString("out/nested/file.txt", tc.existing)
			}

			written, err := WriteFileWithOverwrite(path, []byte("new"), 0o644, tc.overwrite)
			require.NoError(t, err)
			assert.Equal(t, tc.written, written)
			assert.Equal(t, tc.want, env.ReadFileString("out/nested/file.txt"))
		})
	}
}

func TestWriteMarkdownFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("markdown", "free.md")

	require.NoError(t, WriteMarkdownFile(path, "# first", false))
	require.NoError(t, WriteMarkdownFile(path, "# second", false))
	assert.Equal(t, "# first", env.ReadFileString("markdown/free.md"))

	require.NoError(t, WriteMarkdownFile(path, "# third", true))
	assert.Equal(t, "# third", env.ReadFileString("markdown/free.md"))
}

func TestWriteMarkdownFileIntoFileFails(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.WriteFileString("blocker", "x")

	err := WriteMarkdownFile(filepath.Join(env.Path("blocker"), "free.md"), "# doc", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write markdown file")
}

func TestWriteJSONFile(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("json", "free.json")
	holdings := []testHolding{{Library: "Tokyo_Pref", Title: "Robot Dreams"}, {Library: "Osaka_Pref", Title: "I, Robot"}}

	written, err := WriteJSONFile(holdings, path, false)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"library\": \"Tokyo_Pref\"")

	var got []testHolding
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, holdings, got)
}

func TestWriteJSONFileRespectsOverwrite(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("free.json")

	_, err := WriteJSONFile([]testHolding{{Title: "old"}}, path, false)
	require.NoError(t, err)

	written, err := WriteJSONFile([]testHolding{{Title: "new"}}, path, false)
	require.NoError(t, err)
	assert.False(t, written)
	env.AssertFileContains("free.json", `"old"`)

	written, err = WriteJSONFile([]testHolding{{Title: "new"}}, path, true)
	require.NoError(t, err)
	assert.True(t, written)
	env.AssertFileContains("free.json", `"new"`)
}

func TestWriteJSONFileInvalidData(t *testing.T) {
	env := testutil.NewTestEnv(t)
	path := env.Path("bad.json")

	written, err := WriteJSONFile(make(chan int), path, true)
	require.Error(t, err)
	assert.False(t, written)
	assert.False(t, FileExists(path))
}
