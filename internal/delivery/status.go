package delivery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// StatusPolicy maps HTTP response codes to failure kinds.
//
// Class defaults: 4xx is Fatal, everything else that is not 2xx is Transient.
// Overrides win over the class default for their exact code.
type StatusPolicy struct {
	Overrides map[int]Kind
}

// DefaultStatusPolicy treats request timeout and rate limiting as transient.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{Overrides: map[int]Kind{
		408: Transient,
		429: Transient,
	}}
}

// Success reports whether code is a 2xx.
func Success(code int) bool { return code >= 200 && code <= 299 }

// Classify returns the failure kind for a non-2xx code.
func (p StatusPolicy) Classify(code int) Kind {
	if k, ok := p.Overrides[code]; ok {
		return k
	}
	if code >= 400 && code <= 499 {
		return Fatal
	}
	return Transient
}

// With returns a copy of p with extra overrides applied on top.
func (p StatusPolicy) With(extra map[int]Kind) StatusPolicy {
	out := StatusPolicy{Overrides: make(map[int]Kind, len(p.Overrides)+len(extra))}
	for c, k := range p.Overrides {
		out.Overrides[c] = k
	}
	for c, k := range extra {
		out.Overrides[c] = k
	}
	return out
}

// ParseOverrides turns {"400": "transient"} into a code table.
func ParseOverrides(raw map[string]string) (map[int]Kind, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[int]Kind, len(raw))
	for codeStr, kindStr := range raw {
		code, err := strconv.Atoi(strings.TrimSpace(codeStr))
		if err != nil || code < 100 || code > 599 {
			return nil, fmt.Errorf("status_overrides: invalid status code %q", codeStr)
		}
		if Success(code) {
			return nil, fmt.Errorf("status_overrides: %d is a success code", code)
		}
		k, err := ParseKind(strings.ToLower(strings.TrimSpace(kindStr)))
		if err != nil {
			return nil, fmt.Errorf("status_overrides[%d]: %w", code, err)
		}
		out[code] = k
	}
	return out, nil
}

func (p StatusPolicy) String() string {
	codes := make([]int, 0, len(p.Overrides))
	for c := range p.Overrides {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		parts = append(parts, fmt.Sprintf("%d=%s", c, p.Overrides[c]))
	}
	return "4xx=fatal other=transient " + strings.Join(parts, " ")
}
