package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileNameFromURL(t *testing.T) {
	cases := []struct{ link, want string }{
		{"https://huggingface.co/gpt2/resolve/main/model.safetensors", "model.safetensors"},
		{"https://example.com/files/my%20model.bin?download=true", "my model.bin"},
		{"https://example.com/", "download"},
		{"https://example.com", "download"},
		{"https://ghfast.top/https://github.com/o/r/releases/download/v1/a.zip", "a.zip"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, FileNameFromURL(c.link), c.link)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"", "tool", "ARIA2C", " external "} {
		got, err := ParseStrategy(s)
		require.NoError(t, err, s)
		require.Equal(t, StrategyExternalTool, got)
	}
	got, err := ParseStrategy("stream")
	require.NoError(t, err)
	require.Equal(t, StrategyHTTPStream, got)
	require.Equal(t, "stream", got.String())

	_, err = ParseStrategy("ftp")
	require.Error(t, err)
}

func TestNewDownloadTask(t *testing.T) {
	task := NewDownloadTask("https://example.com/a.bin", "/data", "", StrategyHTTPStream, " ABC123 ")
	require.NotEmpty(t, task.ID)
	require.Equal(t, "abc123", task.ExpectedHashPrefix)
	require.Equal(t, "a.bin", task.Label())

	named := NewDownloadTask("https://example.com/a.bin", "/data", "b.bin", StrategyHTTPStream, "")
	require.Equal(t, "b.bin", named.ResolvedFileName())
	require.NotEqual(t, task.ID, named.ID)
}

func TestParseHeaderArgs(t *testing.T) {
	headers := ParseHeaderArgs([]string{"Authorization: Bearer x:y", "X-Empty:", "broken"})
	require.Equal(t, map[string]string{"Authorization": "Bearer x:y", "X-Empty": ""}, headers)
}

func TestFormatting(t *testing.T) {
	require.Equal(t, "512 B", FormatBytes(512))
	require.Equal(t, "1.50 KB", FormatBytes(1536))
	require.Equal(t, "1.00 MB/s", FormatSpeed(1<<20, 1))
	require.Equal(t, "0 B/s", FormatSpeed(10, 0))
	require.Equal(t, "01:05", FormatClock(65*time.Second))
	require.Equal(t, "75:00", FormatClock(75*time.Minute))
	require.Equal(t, "00:00", FormatClock(-time.Second))
}

func TestCleanTempFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.bin", "a.bin.tmp", "b.bin.tmp.aria2", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.tmp"), 0755))

	removed, err := CleanTempFiles(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{filepath.Join(dir, "a.bin.tmp"), filepath.Join(dir, "b.bin.tmp.aria2")}, removed)
	require.FileExists(t, filepath.Join(dir, "a.bin"))
	require.FileExists(t, filepath.Join(dir, "notes.txt"))
	require.DirExists(t, filepath.Join(dir, "sub.tmp"))

	_, err = CleanTempFiles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
