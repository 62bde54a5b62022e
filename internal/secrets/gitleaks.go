package secrets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Detector finds credentials the pattern rules may miss. Findings carry
// byte offsets into text.
type Detector interface {
	Detect(text string) []Finding
}

// GitleaksDetector runs the gitleaks default rule set over captured text.
type GitleaksDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewGitleaksDetector loads the gitleaks default configuration.
func NewGitleaksDetector() (*GitleaksDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	return &GitleaksDetector{detector: d}, nil
}

// Detect reports every occurrence of each secret gitleaks finds. gitleaks
// reports line and column positions, so spans are located by value.
func (g *GitleaksDetector) Detect(text string) []Finding {
	g.mu.Lock()
	results := g.detector.DetectString(text)
	g.mu.Unlock()

	seen := make(map[string]bool, len(results))
	var findings []Finding
	for _, r := range results {
		if r.Secret == "" || seen[r.Secret] {
			continue
		}
		seen[r.Secret] = true
		findings = append(findings, locate(text, r.Secret, "gitleaks:"+r.RuleID)...)
	}
	return findings
}

func locate(text, value, ruleID string) []Finding {
	var out []Finding
	for offset := 0; ; {
		i := strings.Index(text[offset:], value)
		if i < 0 {
			return out
		}
		start := offset + i
		out = append(out, Finding{
			RuleID: ruleID,
			Start:  start,
			End:    start + len(value),
			Line:   strings.Count(text[:start], "\n") + 1,
		})
		offset = start + len(value)
	}
}
