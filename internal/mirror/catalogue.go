package mirror

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rule string

const (
	// RulePrefix prepends the mirror to the full canonical URL (GitHub proxy style).
	RulePrefix Rule = "prefix"
	// RuleReplace swaps the canonical origin for the mirror base.
	RuleReplace Rule = "replace"
)

const (
	PyPIIndex      = "pypi_index"
	PyPIExtraIndex = "pypi_extra_index"
	PyPIFindLinks  = "pypi_find_links"
	GitHub         = "github"
	HuggingFace    = "huggingface"
)

// Section describes one kind of endpoint and the mirrors that can stand in for it.
type Section struct {
	Rule      Rule     `yaml:"rule"`
	Canonical string   `yaml:"canonical"`
	Probe     string   `yaml:"probe"`
	Mirrors   []string `yaml:"mirrors"`
}

type Catalogue map[string]Section

// MirrorCandidate pairs a mirror base with the URL used to check it.
type MirrorCandidate struct {
	BaseURL  string
	ProbeURL string
}

func DefaultCatalogue() Catalogue {
	return Catalogue{
		PyPIIndex: {
			Rule:      RuleReplace,
			Canonical: "https://pypi.org/simple",
			Probe:     "https://pypi.org/simple/pip/",
			Mirrors: []string{
				"https://mirrors.cloud.tencent.com/pypi/simple",
				"https://mirrors.aliyun.com/pypi/simple",
				"https://pypi.tuna.tsinghua.edu.cn/simple",
			},
		},
		PyPIExtraIndex: {
			Rule:      RuleReplace,
			Canonical: "https://download.pytorch.org/whl",
			Probe:     "https://download.pytorch.org/whl/torch/",
			Mirrors:   []string{"https://mirror.sjtu.edu.cn/pytorch-wheels"},
		},
		PyPIFindLinks: {
			Rule:      RuleReplace,
			Canonical: "https://download.pytorch.org/whl",
			Probe:     "https://download.pytorch.org/whl/torch_stable.html",
			Mirrors:   []string{"https://mirror.sjtu.edu.cn/pytorch-wheels"},
		},
		GitHub: {
			Rule:      RulePrefix,
			Canonical: "https://github.com",
			Probe:     "https://github.com/git/git/raw/master/README.md",
			Mirrors: []string{
				"https://ghfast.top",
				"https://gh-proxy.com",
				"https://ghproxy.net",
			},
		},
		HuggingFace: {
			Rule:      RuleReplace,
			Canonical: "https://huggingface.co",
			Probe:     "https://huggingface.co/openai-community/gpt2/resolve/main/config.json",
			Mirrors:   []string{"https://hf-mirror.com"},
		},
	}
}

// LoadCatalogue reads a YAML catalogue and lays it over the defaults.
// Sections present in the file replace the default section of the same name entirely.
func LoadCatalogue(path string) (Catalogue, error) {
	cat := DefaultCatalogue()
	if path == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading mirror catalogue: %w", err)
	}
	var fromFile Catalogue
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("error parsing mirror catalogue: %w", err)
	}
	for name, section := range fromFile {
		if err := section.validate(); err != nil {
			return nil, fmt.Errorf("section %s: %w", name, err)
		}
		if section.Probe == "" {
			// sections without their own check URL are checked at the canonical root
			section.Probe = section.Canonical
		}
		cat[name] = section
	}
	return cat, nil
}

func (c Catalogue) Section(name string) (Section, error) {
	s, ok := c[name]
	if !ok {
		return Section{}, fmt.Errorf("unknown mirror section %q (known: %s)", name, strings.Join(c.Names(), ", "))
	}
	return s, nil
}

func (c Catalogue) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Section) validate() error {
	switch s.Rule {
	case RulePrefix, RuleReplace:
	default:
		return fmt.Errorf("unknown rewrite rule %q", s.Rule)
	}
	if s.Canonical == "" {
		return fmt.Errorf("canonical URL is required")
	}
	if s.Probe != "" && !s.Matches(s.Probe) {
		return fmt.Errorf("probe %s is not under %s", s.Probe, s.Canonical)
	}
	return nil
}

// Matches reports whether rawURL lives under the section's canonical origin. The match has to end
// on a path, query or fragment boundary, so https://github.company.com is not github.com.
func (s Section) Matches(rawURL string) bool {
	_, ok := s.remainder(rawURL)
	return ok
}

func (s Section) remainder(rawURL string) (string, bool) {
	canonical := strings.TrimSuffix(s.Canonical, "/")
	if canonical == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(rawURL, canonical)
	if !ok {
		return "", false
	}
	if rest == "" || strings.ContainsRune("/?#", rune(rest[0])) {
		return rest, true
	}
	return "", false
}

// Rewrite maps a canonical URL onto mirror. URLs outside the section's origin are returned as is.
func (s Section) Rewrite(mirror, canonicalURL string) string {
	mirror = strings.TrimSuffix(mirror, "/")
	if mirror == "" {
		return canonicalURL
	}
	rest, ok := s.remainder(canonicalURL)
	if !ok {
		return canonicalURL
	}
	switch s.Rule {
	case RulePrefix:
		return mirror + "/" + canonicalURL
	case RuleReplace:
		return mirror + rest
	}
	return canonicalURL
}

func (s Section) Candidate(base string) MirrorCandidate {
	return MirrorCandidate{BaseURL: base, ProbeURL: s.Rewrite(base, s.Probe)}
}

// Candidates returns the section's mirrors as a probe list, honouring an explicit override.
func (s Section) Candidates(override string) Candidates {
	if override != "" {
		return One(override)
	}
	return List(s.Mirrors...)
}
