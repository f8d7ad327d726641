// Package filter compiles chapter-number selections such as "3", "7-9" or
// "12.5" into predicates.
//
// Ranges whose end is a whole number extend to just below the next integer,
// so "1-5" selects "5.9" while "1-5.0" does not.
package filter

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberPattern  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	leadingPattern = regexp.MustCompile(`^\d+(\.\d+)?`)
)

type Range struct {
	Start, End       string
	start, end, stop float64
	closed           bool
}

func newRange(a, b string) Range {
	start, _ := strconv.ParseFloat(a, 64)
	end, _ := strconv.ParseFloat(b, 64)
	if end < start {
		a, b = b, a
		start, end = end, start
	}
	r := Range{Start: a, End: b, start: start, end: end}
	if strings.Contains(b, ".") {
		r.closed = true
	} else {
		r.stop = math.Floor(end) + 1
	}
	return r
}

func (r Range) Match(number string) bool {
	lead := leadingPattern.FindString(number)
	if lead == "" {
		return number == r.Start || number == r.End
	}
	x, err := strconv.ParseFloat(lead, 64)
	if err != nil {
		return number == r.Start || number == r.End
	}
	if x < r.start {
		return false
	}
	if r.closed {
		return x <= r.end
	}
	return x < r.stop
}

// Filter accepts a chapter number when it is one of the exact values or
// falls into one of the ranges.
type Filter struct {
	exact     map[string]bool
	matchNull bool
	ranges    []Range
}

// Compile builds a filter from raw tokens. A nil token selects chapters
// without a number. Tokens that are not ranges are matched literally, so
// compiling never fails.
func Compile(tokens []*string) *Filter {
	f := &Filter{exact: make(map[string]bool)}
	for _, token := range tokens {
		if token == nil {
			f.matchNull = true
			continue
		}
		f.add(strings.TrimSpace(*token))
	}
	return f
}

func (f *Filter) add(token string) {
	left, right, found := strings.Cut(token, "-")
	if !found {
		f.exact[token] = true
		return
	}
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	leftNum, rightNum := numberPattern.MatchString(left), numberPattern.MatchString(right)
	switch {
	case leftNum && rightNum:
		f.ranges = append(f.ranges, newRange(left, right))
	case left == "" && rightNum:
		f.exact[right] = true
	case right == "" && leftNum:
		f.exact[left] = true
	default:
		f.exact[token] = true
	}
}

// Match reports whether number is selected. A nil filter selects everything.
func (f *Filter) Match(number *string) bool {
	if f == nil {
		return true
	}
	if number == nil {
		return f.matchNull
	}
	if f.exact[*number] {
		return true
	}
	for _, r := range f.ranges {
		if r.Match(*number) {
			return true
		}
	}
	return false
}

func (f *Filter) Ranges() []Range {
	return f.ranges
}

// ParseCondition splits a conditional edit line "value:condition" at its
// last colon. The condition is a comma separated list of filter tokens. A
// whitespace-only value means null. ok is false when the line carries no
// usable value or condition.
func ParseCondition(line string) (value *string, cond *Filter, ok bool) {
	i := strings.LastIndex(line, ":")
	if i < 0 {
		return nil, nil, false
	}
	raw, rawCond := line[:i], line[i+1:]
	if raw == "" {
		return nil, nil, false
	}

	var tokens []*string
	for _, t := range strings.Split(rawCond, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, &t)
		}
	}
	if len(tokens) == 0 {
		return nil, nil, false
	}

	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		value = &trimmed
	}
	return value, Compile(tokens), true
}
