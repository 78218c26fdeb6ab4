package gitclone

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

type Repo struct {
	Provider string
	Owner    string
	Name     string
}

func (r Repo) CanonicalURL() string {
	return fmt.Sprintf("https://%s/%s/%s", r.Provider, r.Owner, r.Name)
}

func ParseRepoURL(url string) (Repo, error) {
	url = strings.TrimSpace(url)
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")

	parts := strings.Split(url, "/")
	if len(parts) < 3 || parts[1] == "" || parts[2] == "" {
		return Repo{}, fmt.Errorf("invalid git URL format, expected provider/owner/repo")
	}
	switch parts[0] {
	case "github.com", "gitlab.com", "bitbucket.org":
	default:
		return Repo{}, fmt.Errorf("unsupported git provider: %s", parts[0])
	}
	return Repo{Provider: parts[0], Owner: parts[1], Name: parts[2]}, nil
}

// authFor returns nil when there is no token; public repositories clone anonymously.
func authFor(repo Repo, token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	switch repo.Provider {
	case "bitbucket.org":
		return &http.BasicAuth{Username: "x-token-auth", Password: token}
	default:
		return &http.BasicAuth{Username: "oauth2", Password: token}
	}
}
