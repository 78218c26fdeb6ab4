package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/mirrorget/internal/fetch"
	"github.com/tanq16/mirrorget/internal/mirror"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/scheduler"
	"github.com/tanq16/mirrorget/internal/utils"
)

var (
	workers       int
	attempts      int
	connections   int
	timeout       time.Duration
	kaTimeout     time.Duration
	probeTimeout  time.Duration
	retryDelay    time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	limitRate     string
	overwrite     bool
	toolBinary    string
	hfMirror      string
	ghMirror      string
	mirrorsFile   string
	debug         bool
	logFile       string
	logCloser     io.Closer
)

var MirrorgetVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "mirrorget",
	Short:   "mirrorget downloads model weights and assets through the fastest reachable mirror",
	Version: MirrorgetVersion,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		closer, err := utils.InitLogger(debug, logFile)
		if err != nil {
			output.PrintError(err.Error())
			os.Exit(1)
		}
		logCloser = closer
		log.Debug().Str("op", "cmd/root").Msgf("mirrorget %s starting %s", MirrorgetVersion, cmd.Name())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", scheduler.DefaultWorkers, "Number of files to download in parallel")
	rootCmd.PersistentFlags().IntVarP(&attempts, "attempts", "r", 3, "Attempts per file before it is reported as failed")
	rootCmd.PersistentFlags().IntVarP(&connections, "connections", "c", fetch.DefaultConnections, "Connections per file for the download tool")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "Overall HTTP timeout per request, 0 for none (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVar(&kaTimeout, "keep-alive-timeout", 90*time.Second, "Keep-alive timeout for the HTTP client")
	rootCmd.PersistentFlags().DurationVar(&probeTimeout, "probe-timeout", mirror.DefaultProbeTimeout, "Timeout for each mirror probe")
	rootCmd.PersistentFlags().DurationVar(&retryDelay, "retry-delay", 0, "Pause between attempts of the same file")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&limitRate, "limit-rate", "", "Bandwidth cap for stream downloads across the batch (eg. 10MB, 500KiB)")
	rootCmd.PersistentFlags().BoolVar(&overwrite, "overwrite", false, "Download again even when the destination file exists")
	rootCmd.PersistentFlags().StringVar(&toolBinary, "tool", fetch.DefaultToolBinary, "External download tool binary")
	rootCmd.PersistentFlags().StringVar(&hfMirror, "hf-mirror", "auto", "HuggingFace mirror: 'auto' probes the catalogue, 'off' disables, or a base URL")
	rootCmd.PersistentFlags().StringVar(&ghMirror, "gh-mirror", "auto", "GitHub proxy: 'auto' probes the catalogue, 'off' disables, or a base URL")
	rootCmd.PersistentFlags().StringVar(&mirrorsFile, "mirrors", "", "YAML mirror catalogue overriding the built-in one")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")

	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newMirrorCmd())
	rootCmd.AddCommand(newCloneCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newCleanCmd())
}

func fetchOptions() (fetch.Options, error) {
	opts := fetch.Options{
		Overwrite:   overwrite,
		Connections: connections,
		ToolBinary:  toolBinary,
		RetryDelay:  retryDelay,
	}
	if limitRate != "" {
		limit, err := humanize.ParseBytes(limitRate)
		if err != nil {
			return opts, fmt.Errorf("invalid --limit-rate %q: %w", limitRate, err)
		}
		opts.BandwidthLimit = int64(limit)
	}
	return opts, nil
}

func loadCatalogue() (mirror.Catalogue, error) {
	return mirror.LoadCatalogue(mirrorsFile)
}
