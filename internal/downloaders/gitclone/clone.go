package gitclone

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/mirrorget/internal/mirror"
)

type Options struct {
	RepoURL  string
	Dir      string
	Branch   string
	Depth    int
	Token    string
	Progress func(string)
}

type cloneFunc func(ctx context.Context, dir string, o *git.CloneOptions) error

// Cloner clones through the selected GitHub mirror and falls back to the canonical URL.
type Cloner struct {
	section  mirror.Section
	selected string
	clone    cloneFunc
}

func NewCloner(section mirror.Section, selected string) *Cloner {
	return &Cloner{section: section, selected: selected, clone: plainClone}
}

func plainClone(ctx context.Context, dir string, o *git.CloneOptions) error {
	_, err := git.PlainCloneContext(ctx, dir, false, o)
	return err
}

type progressWriter struct {
	streamFunc func(string)
}

func (p *progressWriter) Write(data []byte) (int, error) {
	message := strings.TrimSpace(string(data))
	if message != "" && p.streamFunc != nil {
		p.streamFunc(message)
	}
	return len(data), nil
}

// Sources lists the clone URLs in the order they are tried.
func (c *Cloner) Sources(repo Repo) []string {
	canonical := repo.CanonicalURL()
	if c.selected == "" || repo.Provider != "github.com" {
		return []string{canonical}
	}
	mirrored := c.section.Rewrite(c.selected, canonical)
	if mirrored == canonical {
		return []string{canonical}
	}
	return []string{mirrored, canonical}
}

// Clone returns the URL the repository was cloned from.
func (c *Cloner) Clone(ctx context.Context, opts Options) (string, error) {
	repo, err := ParseRepoURL(opts.RepoURL)
	if err != nil {
		return "", err
	}
	dir := opts.Dir
	if dir == "" {
		dir = repo.Name
	}
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) > 0 {
		return "", fmt.Errorf("destination %s already exists and is not empty", dir)
	}
	// an empty directory the user made stays; only its contents are ours to clean
	preexisting := err == nil
	logger := log.With().Str("op", "gitclone/clone").Str("repo", repo.CanonicalURL()).Logger()

	var errs []error
	for _, source := range c.Sources(repo) {
		cloneOptions := &git.CloneOptions{
			URL:      source,
			Progress: &progressWriter{streamFunc: opts.Progress},
		}
		if source == repo.CanonicalURL() {
			// tokens never go to third-party mirrors
			cloneOptions.Auth = authFor(repo, opts.Token)
		}
		if opts.Depth > 0 {
			cloneOptions.Depth = opts.Depth
		}
		if opts.Branch != "" {
			cloneOptions.ReferenceName = plumbing.NewBranchReferenceName(opts.Branch)
			cloneOptions.SingleBranch = true
		}
		if opts.Progress != nil {
			opts.Progress(fmt.Sprintf("Cloning %s", source))
		}
		err := c.clone(ctx, dir, cloneOptions)
		if err == nil {
			logger.Info().Str("source", source).Msgf("cloned into %s", dir)
			return source, nil
		}
		logger.Warn().Err(err).Str("source", source).Msg("clone attempt failed")
		errs = append(errs, fmt.Errorf("%s: %w", source, err))
		if rmErr := removePartial(dir, preexisting); rmErr != nil {
			logger.Debug().Err(rmErr).Msgf("could not remove partial clone %s", dir)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return "", fmt.Errorf("git clone failed: %w", errors.Join(errs...))
}

func removePartial(dir string, keepDir bool) error {
	if !keepDir {
		return os.RemoveAll(dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, entry := range entries {
		errs = append(errs, os.RemoveAll(filepath.Join(dir, entry.Name())))
	}
	return errors.Join(errs...)
}
