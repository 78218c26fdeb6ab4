package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Strategy int

const (
	StrategyExternalTool Strategy = iota
	StrategyHTTPStream
)

func (s Strategy) String() string {
	switch s {
	case StrategyExternalTool:
		return "tool"
	case StrategyHTTPStream:
		return "stream"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tool", "aria2", "aria2c", "external":
		return StrategyExternalTool, nil
	case "stream", "http", "https":
		return StrategyHTTPStream, nil
	}
	return 0, fmt.Errorf("unknown strategy: %s", s)
}

// ProgressFunc receives the bytes written so far and the expected total (-1 when unknown).
type ProgressFunc func(downloaded, total int64)

// DownloadTask is one URL to one destination file. The engine never mutates it.
type DownloadTask struct {
	ID                 string
	URL                string
	DestinationDir     string
	FileName           string
	Strategy           Strategy
	ExpectedHashPrefix string
}

func NewDownloadTask(url, destDir, fileName string, strategy Strategy, hashPrefix string) DownloadTask {
	return DownloadTask{
		ID:                 uuid.NewString(),
		URL:                url,
		DestinationDir:     destDir,
		FileName:           fileName,
		Strategy:           strategy,
		ExpectedHashPrefix: strings.ToLower(strings.TrimSpace(hashPrefix)),
	}
}

func (t DownloadTask) ResolvedFileName() string {
	if t.FileName != "" {
		return t.FileName
	}
	return FileNameFromURL(t.URL)
}

func (t DownloadTask) Label() string {
	return t.ResolvedFileName()
}

type FetchResult struct {
	Task     DownloadTask
	Path     string
	Attempts int
	Strategy Strategy
	Err      error
}

func (r FetchResult) OK() bool {
	return r.Err == nil
}
