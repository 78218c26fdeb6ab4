package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/downloaders/gitclone"
	"github.com/tanq16/mirrorget/internal/mirror"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/utils"
)

func newCloneCmd() *cobra.Command {
	var branch string
	var depth int
	var token string

	cmd := &cobra.Command{
		Use:   "clone [REPO_URL] [DIR]",
		Short: "Clone a git repository through the selected GitHub mirror",
		Long: `Clone a repository, trying the first reachable GitHub mirror and then the canonical URL.

Examples:
  mirrorget clone https://github.com/comfyanonymous/ComfyUI
  mirrorget clone github.com/AUTOMATIC1111/stable-diffusion-webui webui --depth 1 --branch master`,
		Args: cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			catalogue, err := loadCatalogue()
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			section, err := catalogue.Section(mirror.GitHub)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			dir := ""
			if len(args) > 1 {
				dir = args[1]
			}
			client := utils.NewHTTPClient(httpClientConfig())
			selected := selectMirror(cmd.Context(), client, section, ghMirror)
			if token == "" {
				token = os.Getenv("GITHUB_TOKEN")
			}
			source, err := gitclone.NewCloner(section, selected).Clone(cmd.Context(), gitclone.Options{
				RepoURL:  args[0],
				Dir:      dir,
				Branch:   branch,
				Depth:    depth,
				Token:    token,
				Progress: output.PrintStream,
			})
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			output.PrintSuccess("Cloned from " + source)
		},
	}

	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch to check out")
	cmd.Flags().IntVar(&depth, "depth", 0, "Shallow clone depth (0 for full history)")
	cmd.Flags().StringVar(&token, "token", "", "Access token for the canonical host (defaults to GITHUB_TOKEN)")
	return cmd
}
