package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/utils"
)

// DefaultProbeTimeout is a tunable; probing never ranks mirrors by latency.
const DefaultProbeTimeout = 3 * time.Second

// Candidates is either a single explicit mirror or an ordered list to probe.
type Candidates struct {
	single bool
	urls   []string
}

func One(url string) Candidates {
	return Candidates{single: true, urls: []string{url}}
}

func List(urls ...string) Candidates {
	return Candidates{urls: append([]string(nil), urls...)}
}

func (c Candidates) Single() bool {
	return c.single
}

func (c Candidates) URLs() []string {
	return append([]string(nil), c.urls...)
}

type Prober struct {
	client  utils.HTTPDoer
	section Section
}

func NewProber(client utils.HTTPDoer, section Section) *Prober {
	return &Prober{client: client, section: section}
}

// Select returns the first reachable candidate in order. A single explicit mirror is returned
// without any network traffic. When nothing answers, ok is false and the caller should keep the
// canonical endpoint.
func (p *Prober) Select(ctx context.Context, c Candidates, timeout time.Duration) (string, bool) {
	if c.single {
		return c.urls[0], true
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	for _, base := range c.urls {
		if ctx.Err() != nil {
			return "", false
		}
		candidate := p.section.Candidate(base)
		err := p.probe(ctx, candidate, timeout)
		if err == nil {
			log.Info().Str("op", "mirror/probe").Msgf("selected mirror %s", base)
			return base, true
		}
		log.Debug().Str("op", "mirror/probe").Err(err).Msgf("skipping mirror %s", base)
	}
	log.Warn().Str("op", "mirror/probe").Msg("no mirror reachable, using canonical endpoint")
	return "", false
}

func (p *Prober) probe(ctx context.Context, candidate MirrorCandidate, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, candidate.ProbeURL, nil)
	if err != nil {
		return fmt.Errorf("error creating probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || probeCtx.Err() != nil {
			return fmt.Errorf("%w: %s", utils.ErrProbeTimeout, candidate.ProbeURL)
		}
		return fmt.Errorf("%w: %v", utils.ErrNetwork, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s returned status %d", candidate.ProbeURL, resp.StatusCode)
	}
	return nil
}
