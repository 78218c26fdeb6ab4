package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/utils"
	"github.com/tanq16/mirrorget/internal/verify"
)

// RetryingFetcher runs a task's strategy with bounded sequential attempts.
// It never returns an error: the outcome, including the last failure, is in the FetchResult.
type RetryingFetcher struct {
	tool   Fetcher
	stream Fetcher
	delay  time.Duration

	// set once the tool is found missing; later tasks start on the stream strategy
	toolMissing atomic.Bool
}

// NewRetryingFetcher builds the retry layer. A nil tool means every task runs as a stream download.
func NewRetryingFetcher(tool, stream Fetcher, delay time.Duration) *RetryingFetcher {
	return &RetryingFetcher{tool: tool, stream: stream, delay: delay}
}

// New wires the default tool and stream fetchers from opts.
func New(client utils.HTTPDoer, opts Options) *RetryingFetcher {
	return NewRetryingFetcher(NewToolFetcher(opts), NewStreamFetcher(client, opts), opts.RetryDelay)
}

func (f *RetryingFetcher) fetcherFor(s utils.Strategy) Fetcher {
	if s == utils.StrategyExternalTool {
		return f.tool
	}
	return f.stream
}

func (f *RetryingFetcher) Fetch(ctx context.Context, task utils.DownloadTask, maxAttempts int, onProgress utils.ProgressFunc) utils.FetchResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	strategy := task.Strategy
	if strategy == utils.StrategyExternalTool && (f.tool == nil || f.toolMissing.Load()) {
		strategy = utils.StrategyHTTPStream
	}
	result := utils.FetchResult{Task: task, Strategy: strategy}
	logger := log.With().Str("op", "fetch/retry").Str("task", task.ID).Str("url", task.URL).Logger()

	for result.Attempts < maxAttempts {
		if result.Attempts > 0 && f.delay > 0 {
			select {
			case <-ctx.Done():
				result.Err = fmt.Errorf("%w: %v", utils.ErrNetwork, ctx.Err())
				return result
			case <-time.After(f.delay):
			}
		}
		path, err := f.fetcherFor(strategy).Fetch(ctx, task.URL, task.DestinationDir, task.FileName, onProgress)
		if err != nil && errors.Is(err, utils.ErrToolUnavailable) && strategy == utils.StrategyExternalTool {
			// downgrade once and for good; not an attempt
			if !f.toolMissing.Swap(true) {
				logger.Warn().Err(err).Msg("download tool unavailable, falling back to stream download")
			}
			strategy = utils.StrategyHTTPStream
			result.Strategy = strategy
			continue
		}
		result.Attempts++
		if err == nil && task.ExpectedHashPrefix != "" {
			err = checkHash(path, task.ExpectedHashPrefix)
		}
		if err == nil {
			result.Path = path
			result.Err = nil
			logger.Debug().Int("attempt", result.Attempts).Msgf("fetched %s", path)
			return result
		}
		result.Err = err
		logger.Warn().Err(err).Msgf("Download attempt %d/%d failed", result.Attempts, maxAttempts)
		if ctx.Err() != nil {
			break
		}
	}
	logger.Error().Err(result.Err).Int("attempts", result.Attempts).Msg("download failed after exhausting attempts")
	return result
}

// checkHash verifies path against prefix and deletes it on mismatch so the next attempt starts clean.
func checkHash(path, prefix string) error {
	ok, err := verify.Verify(path, prefix)
	if err == nil && ok {
		return nil
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		log.Warn().Str("op", "fetch/retry").Err(rmErr).Msgf("could not remove %s", path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrHashMismatch, err)
	}
	return fmt.Errorf("%w: %s does not match sha256 prefix %s", utils.ErrHashMismatch, path, prefix)
}
