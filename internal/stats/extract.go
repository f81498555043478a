package stats

import (
	"fmt"
	"regexp"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Extractor finds trade events in log text. The pattern's first capture
// group must be a "2006-01-02 15:04:05" timestamp.
type Extractor struct {
	pattern *regexp.Regexp
}

// NewExtractor compiles pattern.
func NewExtractor(pattern string) (*Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile trade pattern: %w", err)
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("trade pattern %q has no timestamp group", pattern)
	}
	return &Extractor{pattern: re}, nil
}

// Extract returns the local-time timestamp of every match in text.
// Matches with an unparseable timestamp are skipped.
func (e *Extractor) Extract(text string) []time.Time {
	var out []time.Time
	for _, m := range e.pattern.FindAllStringSubmatch(text, -1) {
		ts, err := time.ParseInLocation(timestampLayout, m[1], time.Local)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	return out
}
