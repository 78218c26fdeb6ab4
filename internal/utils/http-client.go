package utils

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
)

type HTTPClientConfig struct {
	Timeout        time.Duration
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	HighThreadMode bool // advanced socket options for high concurrency
	BearerToken    string
	TokenHosts     []string // hosts that receive BearerToken; others never see it
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
		Proxy:               http.ProxyFromEnvironment,
	}
	if cfg.HighThreadMode {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd)
				})
			},
		}).DialContext
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	var rt http.RoundTripper = transport
	if cfg.BearerToken != "" && len(cfg.TokenHosts) > 0 {
		rt = newScopedTokenTransport(cfg.BearerToken, cfg.TokenHosts, transport)
	}
	// Timeout of 0 leaves large transfers unbounded; per-request deadlines come from contexts.
	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: rt,
		},
		config: cfg,
	}
}

// AgentString is the User-Agent every request carries.
func (c HTTPClientConfig) AgentString() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return ToolUserAgent
}

// TokenFor returns the bearer token when rawURL points at one of TokenHosts, otherwise "".
func (c HTTPClientConfig) TokenFor(rawURL string) string {
	if c.BearerToken == "" {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	for _, h := range c.TokenHosts {
		if strings.EqualFold(h, host) {
			return c.BearerToken
		}
	}
	return ""
}

func (d *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", d.config.AgentString())
	for k, v := range d.config.Headers {
		req.Header.Set(k, v)
	}
	return d.client.Do(req)
}

// scopedTokenTransport attaches an oauth2 bearer token only to requests for the configured hosts.
type scopedTokenTransport struct {
	hosts  map[string]bool
	authed http.RoundTripper
	plain  http.RoundTripper
}

func newScopedTokenTransport(token string, hosts []string, base http.RoundTripper) *scopedTokenTransport {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(h)] = true
	}
	return &scopedTokenTransport{
		hosts: set,
		authed: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		},
		plain: base,
	}
}

func (t *scopedTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.hosts[strings.ToLower(req.URL.Hostname())] {
		return t.authed.RoundTrip(req)
	}
	return t.plain.RoundTrip(req)
}
