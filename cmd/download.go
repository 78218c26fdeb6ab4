package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/utils"
)

func newDownloadCmd() *cobra.Command {
	var outputDir string
	var fileName string
	var strategy string
	var sha256Prefix string

	cmd := &cobra.Command{
		Use:   "download [URL] [OPTIONS]",
		Short: "Download a single file",
		Long: `Download one file, retrying up to --attempts times.

Examples:
  mirrorget download https://huggingface.co/gpt2/resolve/main/model.safetensors -d models/gpt2
  mirrorget download https://example.com/big.iso --strategy stream --sha256 9f86d08
  mirrorget download s3://bucket/weights/model.bin -d models`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := utils.ParseStrategy(strategy)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			task := utils.NewDownloadTask(args[0], outputDir, fileName, s, sha256Prefix)
			report, err := runTasks(cmd.Context(), []utils.DownloadTask{task})
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(report.Failed) > 0 {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputDir, "dir", "d", ".", "Destination directory")
	cmd.Flags().StringVarP(&fileName, "name", "n", "", "Destination file name (inferred from the URL if not provided)")
	cmd.Flags().StringVar(&strategy, "strategy", "tool", "Download strategy: tool or stream")
	cmd.Flags().StringVar(&sha256Prefix, "sha256", "", "Expected SHA-256 hex prefix of the file")
	return cmd
}
