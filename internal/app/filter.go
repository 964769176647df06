package app

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bft-labs/propship/internal/domain"
)

// DefaultFilter matches every key.
const DefaultFilter = ".*"

// KeyFilter keeps entries whose trimmed key fully matches an expression.
type KeyFilter struct {
	expr string
	re   *regexp.Regexp
}

// NewKeyFilter compiles expr with full-match semantics. An empty expression
// means DefaultFilter.
func NewKeyFilter(expr string) (*KeyFilter, error) {
	if expr == "" {
		expr = DefaultFilter
	}
	re, err := regexp.Compile(`^(?:` + expr + `)$`)
	if err != nil {
		return nil, fmt.Errorf("%w: filter %q: %v", domain.ErrInvalidConfig, expr, err)
	}
	return &KeyFilter{expr: expr, re: re}, nil
}

// String returns the source expression.
func (f *KeyFilter) String() string { return f.expr }

// Match reports whether key, trimmed of surrounding whitespace, fully matches.
func (f *KeyFilter) Match(key string) bool {
	return f.re.MatchString(strings.TrimSpace(key))
}

// Apply returns the matching entries under their trimmed keys. The filename
// marker is never kept, even if the source file contains it.
func (f *KeyFilter) Apply(entries domain.EntrySet) domain.EntrySet {
	out := make(domain.EntrySet, len(entries))
	for k, v := range entries {
		key := strings.TrimSpace(k)
		if key == domain.FilenameMarker || !f.re.MatchString(key) {
			continue
		}
		out[key] = v
	}
	return out
}
