package fetch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/tanq16/mirrorget/internal/utils"
)

const (
	DefaultConnections = 16
	DefaultMinSplit    = "1M"
	DefaultToolBinary  = "aria2c"
)

// Fetcher downloads one URL into destDir and returns the final path.
// An empty fileName is derived from the URL.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir, fileName string, onProgress utils.ProgressFunc) (string, error)
}

type Options struct {
	Overwrite      bool
	Connections    int
	MinSplit       string
	ToolBinary     string
	BandwidthLimit int64 // bytes per second across all streams, 0 means unlimited
	RetryDelay     time.Duration

	// HTTP carries proxy, headers and token scope to transports that do not go through utils.HTTPClient.
	HTTP utils.HTTPClientConfig
}

func (o Options) withDefaults() Options {
	if o.Connections <= 0 {
		o.Connections = DefaultConnections
	}
	if o.MinSplit == "" {
		o.MinSplit = DefaultMinSplit
	}
	if o.ToolBinary == "" {
		o.ToolBinary = DefaultToolBinary
	}
	return o
}

func finalPath(url, destDir, fileName string) string {
	if fileName == "" {
		fileName = utils.FileNameFromURL(url)
	}
	return filepath.Join(destDir, fileName)
}

// alreadyPresent reports whether finalPath can be returned without doing any work.
func alreadyPresent(path string, overwrite bool) bool {
	return !overwrite && utils.FileExists(path)
}
