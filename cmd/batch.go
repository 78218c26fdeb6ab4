package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/utils"
	"gopkg.in/yaml.v3"
)

type BatchEntry struct {
	URL      string `yaml:"url"`
	Dir      string `yaml:"dir,omitempty"`
	Name     string `yaml:"name,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
	SHA256   string `yaml:"sha256,omitempty"`
}

// BatchFile is the YAML task list. Top-level dir and strategy are defaults for every entry.
type BatchFile struct {
	Dir      string       `yaml:"dir,omitempty"`
	Strategy string       `yaml:"strategy,omitempty"`
	Tasks    []BatchEntry `yaml:"tasks"`
}

func newBatchCmd() *cobra.Command {
	var allowPartial bool

	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Download every file listed in a YAML file",
		Long: `Download every file listed in a YAML file concurrently.

Example file:
  dir: models
  tasks:
    - url: https://huggingface.co/gpt2/resolve/main/config.json
    - url: https://huggingface.co/gpt2/resolve/main/model.safetensors
      sha256: 248dfc39
    - url: https://example.com/vae.bin
      dir: models/vae
      name: vae.safetensors
      strategy: stream`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			data, err := os.ReadFile(args[0])
			if err != nil {
				output.PrintError(fmt.Sprintf("Error reading batch file: %v", err))
				os.Exit(1)
			}
			tasks, err := parseBatchFile(data, filepath.Dir(args[0]))
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			report, err := runTasks(cmd.Context(), tasks)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(report.Failed) > 0 && !allowPartial {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "Exit successfully even when some files failed")
	return cmd
}

// parseBatchFile builds tasks from YAML. Relative directories resolve against baseDir.
func parseBatchFile(data []byte, baseDir string) ([]utils.DownloadTask, error) {
	var file BatchFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing batch file: %w", err)
	}
	if len(file.Tasks) == 0 {
		return nil, errors.New("no tasks found in the batch file")
	}
	tasks := make([]utils.DownloadTask, 0, len(file.Tasks))
	for i, entry := range file.Tasks {
		if entry.URL == "" {
			return nil, fmt.Errorf("task %d has no url", i+1)
		}
		strategyName := entry.Strategy
		if strategyName == "" {
			strategyName = file.Strategy
		}
		strategy, err := utils.ParseStrategy(strategyName)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i+1, err)
		}
		dir := entry.Dir
		if dir == "" {
			dir = file.Dir
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(baseDir, dir)
		}
		tasks = append(tasks, utils.NewDownloadTask(entry.URL, dir, entry.Name, strategy, entry.SHA256))
	}
	return tasks, nil
}
