package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/mirror"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/utils"
)

func newMirrorCmd() *cobra.Command {
	var override string
	var rewrite string

	cmd := &cobra.Command{
		Use:   "mirror [KIND]",
		Short: "Print the first reachable mirror for a catalogue section",
		Long: `Probe the mirrors of one catalogue section in order and print the first that answers.
Without KIND, the known sections are listed.

Examples:
  pip install -i "$(mirrorget mirror pypi_index)" numpy
  mirrorget mirror huggingface --rewrite https://huggingface.co/gpt2/resolve/main/config.json`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			catalogue, err := loadCatalogue()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			if len(args) == 0 {
				for _, name := range catalogue.Names() {
					section, _ := catalogue.Section(name)
					fmt.Printf("%s %s (%s, %d mirrors)\n", output.FHeader(name), section.Canonical, section.Rule, len(section.Mirrors))
				}
				return
			}
			section, err := catalogue.Section(args[0])
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			client := utils.NewHTTPClient(httpClientConfig())
			selected, ok := mirror.NewProber(client, section).Select(cmd.Context(), section.Candidates(override), probeTimeout)
			if !ok {
				output.PrintWarning("none")
				if rewrite != "" {
					fmt.Println(rewrite)
				}
				return
			}
			if rewrite != "" {
				fmt.Println(section.Rewrite(selected, rewrite))
				return
			}
			fmt.Println(selected)
		},
	}

	cmd.Flags().StringVar(&override, "use", "", "Use this mirror without probing")
	cmd.Flags().StringVar(&rewrite, "rewrite", "", "Print this canonical URL rewritten for the selected mirror")
	return cmd
}
