package fetch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/utils"
)

// ToolFetcher hands transfers to an external segmented downloader (aria2c compatible flags).
type ToolFetcher struct {
	binary      string
	connections int
	minSplit    string
	overwrite   bool
	http        utils.HTTPClientConfig
	lookPath    func(string) (string, error)
	command     func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewToolFetcher(opts Options) *ToolFetcher {
	opts = opts.withDefaults()
	return &ToolFetcher{
		binary:      opts.ToolBinary,
		connections: opts.Connections,
		minSplit:    opts.MinSplit,
		overwrite:   opts.Overwrite,
		http:        opts.HTTP,
		lookPath:    exec.LookPath,
		command:     exec.CommandContext,
	}
}

// Locate resolves the tool binary or returns ErrToolUnavailable.
func (f *ToolFetcher) Locate() (string, error) {
	path, err := f.lookPath(f.binary)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", utils.ErrToolUnavailable, f.binary, err)
	}
	return path, nil
}

func (f *ToolFetcher) args(url, destDir, outName string) []string {
	args := []string{
		"-c",
		"-x", strconv.Itoa(f.connections),
		"-s", strconv.Itoa(f.connections),
		"-k", f.minSplit,
		"--console-log-level=error",
		"--summary-interval=0",
		"--allow-overwrite=true",
		"--auto-file-renaming=false",
		"--user-agent=" + f.http.AgentString(),
	}
	if f.http.ProxyURL != "" {
		args = append(args, "--all-proxy="+f.http.ProxyURL)
		if f.http.ProxyUsername != "" {
			args = append(args, "--all-proxy-user="+f.http.ProxyUsername)
		}
		if f.http.ProxyPassword != "" {
			args = append(args, "--all-proxy-passwd="+f.http.ProxyPassword)
		}
	}
	headerKeys := make([]string, 0, len(f.http.Headers))
	for key := range f.http.Headers {
		headerKeys = append(headerKeys, key)
	}
	sort.Strings(headerKeys)
	for _, key := range headerKeys {
		args = append(args, fmt.Sprintf("--header=%s: %s", key, f.http.Headers[key]))
	}
	if token := f.http.TokenFor(url); token != "" {
		args = append(args, "--header=Authorization: Bearer "+token)
	}
	return append(args, "-d", destDir, "-o", outName, url)
}

func (f *ToolFetcher) Fetch(ctx context.Context, url, destDir, fileName string, onProgress utils.ProgressFunc) (string, error) {
	target := finalPath(url, destDir, fileName)
	if alreadyPresent(target, f.overwrite) {
		log.Debug().Str("op", "fetch/external").Msgf("%s already present, skipping", target)
		return target, nil
	}
	binPath, err := f.Locate()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("%w: error creating destination directory: %v", utils.ErrTransferFailed, err)
	}
	tmpPath := utils.TempPath(target)
	// the tool keeps partial data under the temporary name so the final name only ever holds complete files
	cmd := f.command(ctx, binPath, f.args(url, destDir, filepath.Base(tmpPath))...)
	// cmd.String() would leak proxy credentials and tokens into the log
	log.Debug().Str("op", "fetch/external").Msgf("Executing download tool: %s for %s", binPath, url)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("%w: error creating stderr pipe: %v", utils.ErrTransferFailed, err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", utils.ErrToolUnavailable, err)
		}
		return "", fmt.Errorf("%w: error starting %s: %v", utils.ErrTransferFailed, f.binary, err)
	}
	var lines []string
	processStream(stderr, func(line string) {
		lines = append(lines, line)
		log.Debug().Str("op", "fetch/external").Str("url", url).Msg(line)
	})
	if err := cmd.Wait(); err != nil {
		detail := strings.Join(lines, "; ")
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%w: %s exited with code %d: %s", utils.ErrTransferFailed, f.binary, exitErr.ExitCode(), detail)
		}
		return "", fmt.Errorf("%w: %v", utils.ErrTransferFailed, err)
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return "", fmt.Errorf("%w: tool reported success but %s is missing", utils.ErrTransferFailed, tmpPath)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("%w: error renaming (finalizing) output file: %v", utils.ErrTransferFailed, err)
	}
	if onProgress != nil {
		onProgress(info.Size(), info.Size())
	}
	log.Info().Str("op", "fetch/external").Msgf("Tool download completed for %s", target)
	return target, nil
}

func processStream(reader io.Reader, streamFunc func(string)) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && streamFunc != nil {
			streamFunc(line)
		}
	}
}
