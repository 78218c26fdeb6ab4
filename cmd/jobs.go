package cmd

import (
	"context"
	"fmt"
	u "net/url"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/downloaders/s3"
	"github.com/tanq16/mirrorget/internal/fetch"
	"github.com/tanq16/mirrorget/internal/mirror"
	"github.com/tanq16/mirrorget/internal/output"
	"github.com/tanq16/mirrorget/internal/scheduler"
	"github.com/tanq16/mirrorget/internal/utils"
)

const hfTokenEnv = "HF_TOKEN"

func httpClientConfig() utils.HTTPClientConfig {
	agent := userAgent
	if agent == "randomize" {
		agent = utils.GetRandomUserAgent()
	}
	proxy, user, pass := proxyURL, proxyUsername, proxyPassword
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(proxy)
	if err == nil && parsedProxy.User != nil && user == "" {
		user = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			pass = password
		}
		parsedProxy.User = nil
		proxy = parsedProxy.String()
	}
	return utils.HTTPClientConfig{
		Timeout:        timeout,
		KATimeout:      kaTimeout,
		ProxyURL:       proxy,
		ProxyUsername:  user,
		ProxyPassword:  pass,
		UserAgent:      agent,
		Headers:        utils.ParseHeaderArgs(headers),
		HighThreadMode: workers > 8,
	}
}

// withHFToken scopes the HuggingFace token to huggingface.co and the selected mirror.
func withHFToken(cfg utils.HTTPClientConfig, token, selectedMirror string) utils.HTTPClientConfig {
	if token == "" {
		return cfg
	}
	cfg.BearerToken = token
	cfg.TokenHosts = []string{"huggingface.co"}
	if parsed, err := u.Parse(selectedMirror); err == nil && parsed.Hostname() != "" {
		cfg.TokenHosts = append(cfg.TokenHosts, parsed.Hostname())
	}
	return cfg
}

// selectMirror resolves a mirror flag value. It returns "" when mirroring is off or nothing answered.
func selectMirror(ctx context.Context, client utils.HTTPDoer, section mirror.Section, setting string) string {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case "", "off", "none", "false":
		return ""
	case "auto":
		setting = ""
	}
	selected, ok := mirror.NewProber(client, section).Select(ctx, section.Candidates(setting), probeTimeout)
	if !ok {
		return ""
	}
	return selected
}

func usesSection(tasks []utils.DownloadTask, section mirror.Section) bool {
	for _, task := range tasks {
		if section.Matches(task.URL) {
			return true
		}
	}
	return false
}

// rewriteTasks points tasks at the selected mirror. IDs and names stay the same.
func rewriteTasks(tasks []utils.DownloadTask, section mirror.Section, selected string) []utils.DownloadTask {
	out := make([]utils.DownloadTask, len(tasks))
	for i, task := range tasks {
		if selected != "" {
			if task.FileName == "" {
				task.FileName = utils.FileNameFromURL(task.URL)
			}
			task.URL = section.Rewrite(selected, task.URL)
		}
		out[i] = task
	}
	return out
}

// prepareTasks routes tasks through mirrors and presigns S3 objects. It returns the HTTP
// client configuration the download itself should use.
func prepareTasks(ctx context.Context, tasks []utils.DownloadTask) ([]utils.DownloadTask, utils.HTTPClientConfig, error) {
	cfg := httpClientConfig()
	catalogue, err := loadCatalogue()
	if err != nil {
		return nil, cfg, err
	}
	probeClient := utils.NewHTTPClient(cfg)

	selectedHF := ""
	if section, err := catalogue.Section(mirror.HuggingFace); err == nil && usesSection(tasks, section) {
		selectedHF = selectMirror(ctx, probeClient, section, hfMirror)
		tasks = rewriteTasks(tasks, section, selectedHF)
	}
	if section, err := catalogue.Section(mirror.GitHub); err == nil && usesSection(tasks, section) {
		tasks = rewriteTasks(tasks, section, selectMirror(ctx, probeClient, section, ghMirror))
	}
	cfg = withHFToken(cfg, os.Getenv(hfTokenEnv), selectedHF)

	if s3.NeedsResolver(tasks) {
		// AWS_PROFILE and the rest of the default chain are read by the SDK
		resolver, err := s3.NewResolverFromProfile(ctx, "")
		if err != nil {
			return nil, cfg, err
		}
		if tasks, err = resolver.ResolveAll(ctx, tasks); err != nil {
			return nil, cfg, err
		}
	}
	return tasks, cfg, nil
}

// runTasks downloads tasks as one batch and returns the report.
func runTasks(ctx context.Context, tasks []utils.DownloadTask) (*scheduler.BatchReport, error) {
	tasks, cfg, err := prepareTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}
	opts, err := fetchOptions()
	if err != nil {
		return nil, err
	}
	opts.HTTP = cfg
	fetcher := fetch.New(utils.NewHTTPClient(cfg), opts)
	if _, err := fetch.NewToolFetcher(opts).Locate(); err != nil {
		log.Warn().Str("op", "cmd/jobs").Err(err).Msg("tool downloads will fall back to streaming")
	}

	var reporter scheduler.Reporter
	var display *output.Manager
	if output.IsTerminal() {
		display = output.NewManager()
		display.Register(tasks)
		display.StartDisplay()
		reporter = display
	} else {
		reporter = output.NewPlainReporter(os.Stdout)
	}
	coordinator := scheduler.New(fetcher, scheduler.Options{
		Workers:     workers,
		MaxAttempts: attempts,
		Reporter:    reporter,
	})
	report, err := coordinator.Run(ctx, tasks)
	if display != nil {
		display.StopDisplay()
	} else if report != nil {
		fmt.Printf("Completed %d of %d, failed %d\n", len(report.Succeeded), report.Total, len(report.Failed))
	}
	return report, err
}
