package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/utils"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [DIR]",
		Short: "Remove partial downloads left by interrupted runs",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			removed, err := utils.CleanTempFiles(dir)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning %s: %v", dir, err))
				os.Exit(1)
			}
			for _, p := range removed {
				output.PrintDetail(p)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary files", len(removed)))
		},
	}
}
