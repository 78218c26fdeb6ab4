package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/verify"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [FILE] [SHA256_PREFIX]",
		Short: "Check a file against a SHA-256 prefix, or print its digest",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 1 {
				sum, err := verify.FileSHA256(args[0])
				if err != nil {
					output.PrintError(err.Error())
					os.Exit(1)
				}
				fmt.Println(sum)
				return
			}
			ok, err := verify.Verify(args[0], args[1])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if !ok {
				output.PrintError(fmt.Sprintf("%s does not match %s", args[0], args[1]))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s matches %s", args[0], args[1]))
		},
	}
}
