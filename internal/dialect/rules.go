package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrParsingFailed is returned when none of a dialect's scalar rules match.
var ErrParsingFailed = errors.New("output matched no known metric")

// Metrics maps canonical metric names to values. Keys exist only for
// patterns that matched.
type Metrics map[string]float64

// Unit is the unit a source prints a value in.
type Unit int

const (
	Plain Unit = iota
	Seconds
	Microseconds
	Nanoseconds
)

func (u Unit) normalize(v float64) float64 {
	if u == Nanoseconds {
		return v / 1000
	}
	return v
}

// Rule extracts one scalar metric. The first capture group of Pattern
// holds the number; only the first occurrence counts.
type Rule struct {
	Name    string
	Pattern string
	Unit    Unit
	// Grouped allows thousands separators in the captured number.
	Grouped bool

	re *regexp.Regexp
}

// Profiler describes a phase timing section.
type Profiler struct {
	// Marker, when set, must appear in the text; only lines after it are scanned.
	Marker string
	Unit   Unit
	// Trailer is an extra pattern required after the number, e.g. `\s*\(`.
	Trailer string
	// Phases maps the source's phase spelling to the canonical phase name.
	Phases []Phase

	res []*regexp.Regexp
}

type Phase struct {
	Source    string
	Canonical string
}

// Dialect is the rule table for one engine family's output.
type Dialect struct {
	Name     string
	Scalars  []Rule
	Profiler *Profiler
}

// ProfilerKey returns the canonical column name for a phase.
func ProfilerKey(phase string) string {
	return "Profiler_" + strings.ReplaceAll(phase, " ", "_") + "_us"
}

func (d *Dialect) compile() error {
	for i := range d.Scalars {
		r := &d.Scalars[i]
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return fmt.Errorf("dialect %s: rule %s: %w", d.Name, r.Name, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("dialect %s: rule %s: pattern has no capture group", d.Name, r.Name)
		}
		r.re = re
	}
	if p := d.Profiler; p != nil {
		p.res = make([]*regexp.Regexp, len(p.Phases))
		for i, ph := range p.Phases {
			expr := `(?m)^\s*` + regexp.QuoteMeta(ph.Source) + `\s*:\s*([\d.]+)` + p.Trailer
			re, err := regexp.Compile(expr)
			if err != nil {
				return fmt.Errorf("dialect %s: phase %s: %w", d.Name, ph.Source, err)
			}
			p.res[i] = re
		}
	}
	return nil
}

// Parse extracts metrics from text. It is a pure function of the dialect
// and the text.
func (d *Dialect) Parse(text string) (Metrics, error) {
	m := Metrics{}
	for _, r := range d.Scalars {
		if _, seen := m[r.Name]; seen {
			continue
		}
		match := r.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		v, ok := parseNumber(match[1], r.Grouped)
		if !ok {
			continue
		}
		m[r.Name] = r.Unit.normalize(v)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("dialect %s: %w", d.Name, ErrParsingFailed)
	}
	if d.Profiler != nil {
		d.Profiler.parse(text, m)
	}
	return m, nil
}

func (p *Profiler) parse(text string, m Metrics) {
	if p.Marker != "" {
		idx := strings.Index(text, p.Marker)
		if idx < 0 {
			return
		}
		text = text[idx+len(p.Marker):]
	}
	for i, ph := range p.Phases {
		key := ProfilerKey(ph.Canonical)
		if _, seen := m[key]; seen {
			continue
		}
		match := p.res[i].FindStringSubmatch(text)
		if match == nil {
			continue
		}
		v, ok := parseNumber(match[1], false)
		if !ok {
			continue
		}
		m[key] = p.Unit.normalize(v)
	}
}

func parseNumber(s string, grouped bool) (float64, bool) {
	if grouped {
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
