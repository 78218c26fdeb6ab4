package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/utils"
	"golang.org/x/time/rate"
)

const progressInterval = 100 * time.Millisecond

// StreamFetcher downloads with a single streaming GET into a .tmp sibling and renames on success.
type StreamFetcher struct {
	client    utils.HTTPDoer
	overwrite bool
	limiter   *rate.Limiter // shared by every transfer of this fetcher
}

func NewStreamFetcher(client utils.HTTPDoer, opts Options) *StreamFetcher {
	f := &StreamFetcher{
		client:    client,
		overwrite: opts.Overwrite,
	}
	if opts.BandwidthLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.BandwidthLimit), int(max(opts.BandwidthLimit, 1)))
	}
	return f
}

func (f *StreamFetcher) Fetch(ctx context.Context, url, destDir, fileName string, onProgress utils.ProgressFunc) (string, error) {
	target := finalPath(url, destDir, fileName)
	if alreadyPresent(target, f.overwrite) {
		log.Debug().Str("op", "fetch/stream").Msgf("%s already present, skipping", target)
		return target, nil
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("%w: error creating destination directory: %v", utils.ErrTransferFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: error creating GET request: %v", utils.ErrNetwork, err)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: error executing GET request: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: unexpected status code: %d", utils.ErrNetwork, resp.StatusCode)
	}

	tmpPath := utils.TempPath(target)
	outFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("%w: error creating output file: %v", utils.ErrTransferFailed, err)
	}
	committed := false
	defer func() {
		if !committed {
			outFile.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				log.Warn().Str("op", "fetch/stream").Err(rmErr).Msgf("could not remove %s", tmpPath)
			}
		}
	}()

	total := resp.ContentLength // -1 when the server does not say
	var body io.Reader = resp.Body
	if f.limiter != nil {
		body = &rateLimitedReader{r: resp.Body, limiter: f.limiter, ctx: ctx}
	}
	buffer := make([]byte, utils.DefaultBufferSize)
	var downloaded int64
	lastReport := time.Now()
	for {
		bytesRead, readErr := body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return "", fmt.Errorf("%w: error writing to output file: %v", utils.ErrTransferFailed, writeErr)
			}
			downloaded += int64(bytesRead)
			if onProgress != nil && time.Since(lastReport) >= progressInterval {
				onProgress(downloaded, total)
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", fmt.Errorf("%w: error reading response body: %v", utils.ErrNetwork, readErr)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	if total >= 0 && downloaded != total {
		return "", fmt.Errorf("%w: size mismatch: expected %d bytes, got %d", utils.ErrNetwork, total, downloaded)
	}
	if err := outFile.Sync(); err != nil {
		return "", fmt.Errorf("%w: error syncing output file: %v", utils.ErrTransferFailed, err)
	}
	if err := outFile.Close(); err != nil {
		return "", fmt.Errorf("%w: error closing output file: %v", utils.ErrTransferFailed, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("%w: error renaming (finalizing) output file: %v", utils.ErrTransferFailed, err)
	}
	committed = true
	if onProgress != nil {
		onProgress(downloaded, total)
	}
	log.Info().Str("op", "fetch/stream").Msgf("Stream download completed for %s", target)
	return target, nil
}

type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (rl *rateLimitedReader) Read(p []byte) (int, error) {
	if burst := rl.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := rl.r.Read(p)
	if n > 0 {
		if waitErr := rl.limiter.WaitN(rl.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
