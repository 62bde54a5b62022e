package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultReplacement is substituted for every redacted span.
const DefaultReplacement = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled     bool     `koanf:"enabled"`
	Replacement string   `koanf:"replacement"`
	Rules       []Rule   `koanf:"rules"`
	AllowList   []string `koanf:"allow_list"`
	// Gitleaks adds the gitleaks default rule set on top of Rules.
	Gitleaks bool `koanf:"gitleaks"`
	// Detectors are extra detectors consulted after Rules.
	Detectors []Detector `koanf:"-"`
}

// DefaultConfig enables scrubbing with DefaultRules.
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Replacement: DefaultReplacement,
		Rules:       DefaultRules(),
	}
}

// Finding records one redacted span. The matched value is never kept.
type Finding struct {
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Line   int    `json:"line"`
}

// Result is the outcome of scrubbing one text.
type Result struct {
	Text     string    `json:"text"`
	Findings []Finding `json:"findings,omitempty"`
}

// Redacted reports whether anything was replaced.
func (r Result) Redacted() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rules that fired, sorted.
func (r Result) RuleIDs() []string {
	seen := make(map[string]bool, len(r.Findings))
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if !seen[f.RuleID] {
			seen[f.RuleID] = true
			ids = append(ids, f.RuleID)
		}
	}
	sort.Strings(ids)
	return ids
}

type compiledRule struct {
	id      string
	pattern *regexp.Regexp
}

// Scrubber redacts credentials. It is safe for concurrent use.
type Scrubber struct {
	enabled     bool
	replacement string
	rules       []compiledRule
	detectors   []Detector
	allow       []*regexp.Regexp
}

// New compiles cfg into a Scrubber.
func New(cfg Config) (*Scrubber, error) {
	s := &Scrubber{enabled: cfg.Enabled, replacement: cfg.Replacement}
	if s.replacement == "" {
		s.replacement = DefaultReplacement
	}
	for _, rule := range cfg.Rules {
		if rule.ID == "" || rule.Pattern == "" {
			return nil, fmt.Errorf("secret rule requires id and pattern: %+v", rule)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", rule.ID, err)
		}
		s.rules = append(s.rules, compiledRule{id: rule.ID, pattern: re})
	}
	for i, pattern := range cfg.AllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	s.detectors = append(s.detectors, cfg.Detectors...)
	if cfg.Gitleaks {
		g, err := NewGitleaksDetector()
		if err != nil {
			return nil, err
		}
		s.detectors = append(s.detectors, g)
	}
	return s, nil
}

// MustNew is New that panics on an invalid configuration.
func MustNew(cfg Config) *Scrubber {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

// Disabled returns a Scrubber that passes text through unchanged.
func Disabled() *Scrubber {
	return &Scrubber{replacement: DefaultReplacement}
}

// Enabled reports whether s redacts anything.
func (s *Scrubber) Enabled() bool {
	return s != nil && s.enabled
}

// Scrub replaces every credential in text. Overlapping matches are merged
// into a single replacement.
func (s *Scrubber) Scrub(text string) Result {
	if !s.Enabled() {
		return Result{Text: text}
	}

	var findings []Finding
	for _, rule := range s.rules {
		for _, loc := range rule.pattern.FindAllStringIndex(text, -1) {
			if s.allowed(text[loc[0]:loc[1]]) {
				continue
			}
			findings = append(findings, Finding{
				RuleID: rule.id,
				Start:  loc[0],
				End:    loc[1],
				Line:   strings.Count(text[:loc[0]], "\n") + 1,
			})
		}
	}
	for _, d := range s.detectors {
		for _, f := range d.Detect(text) {
			if f.Start < 0 || f.End > len(text) || f.Start >= f.End || s.allowed(text[f.Start:f.End]) {
				continue
			}
			findings = append(findings, f)
		}
	}
	if len(findings) == 0 {
		return Result{Text: text}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Start < findings[j].Start
	})

	var b strings.Builder
	cursor, end := 0, -1
	for _, f := range findings {
		if f.Start < end {
			if f.End > end {
				end = f.End
			}
			continue
		}
		if end >= 0 {
			b.WriteString(s.replacement)
			cursor = end
		}
		b.WriteString(text[cursor:f.Start])
		cursor, end = f.Start, f.End
	}
	b.WriteString(s.replacement)
	b.WriteString(text[end:])

	return Result{Text: b.String(), Findings: findings}
}

func (s *Scrubber) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}
