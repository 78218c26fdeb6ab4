package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tanq16/mirrorget/internal/utils"
)

func TestParseBatchFile(t *testing.T) {
	data := []byte(`
dir: models
strategy: stream
tasks:
  - url: https://huggingface.co/gpt2/resolve/main/config.json
  - url: https://example.com/vae.bin
    dir: /abs/vae
    name: vae.safetensors
    strategy: tool
    sha256: ABCDEF
`)
	tasks, err := parseBatchFile(data, "/work")
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	require.Equal(t, filepath.Join("/work", "models"), tasks[0].DestinationDir)
	require.Equal(t, utils.StrategyHTTPStream, tasks[0].Strategy)
	require.Empty(t, tasks[0].FileName)
	require.Empty(t, tasks[0].ExpectedHashPrefix)

	require.Equal(t, "/abs/vae", tasks[1].DestinationDir)
	require.Equal(t, "vae.safetensors", tasks[1].FileName)
	require.Equal(t, utils.StrategyExternalTool, tasks[1].Strategy)
	require.Equal(t, "abcdef", tasks[1].ExpectedHashPrefix)

	require.NotEqual(t, tasks[0].ID, tasks[1].ID)
}

func TestParseBatchFileDefaults(t *testing.T) {
	tasks, err := parseBatchFile([]byte("tasks:\n  - url: https://example.com/a.bin\n"), "/work")
	require.NoError(t, err)
	require.Equal(t, "/work", tasks[0].DestinationDir)
	require.Equal(t, utils.StrategyExternalTool, tasks[0].Strategy)
}

func TestParseBatchFileErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "tasks: []\n",
		"missing url":  "tasks:\n  - name: a.bin\n",
		"bad strategy": "tasks:\n  - url: https://example.com/a\n    strategy: carrier-pigeon\n",
		"not yaml":     "tasks: [\n",
	}
	for name, data := range cases {
		_, err := parseBatchFile([]byte(data), ".")
		require.Error(t, err, name)
	}
}
