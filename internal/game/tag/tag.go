// Package tag provides the symbolic labels used to gate ability and effect
// applicability, and the predicates evaluated over them.
package tag

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Tag is a symbolic label such as "state.stunned" or "element.fire".
//
// Tags are declared once in configuration and validated through a Registry at
// load time; a definition naming an undeclared tag is rejected before it can
// reach runtime.
type Tag string

var tagPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)*$`)

// Valid reports whether t is a well-formed tag symbol.
func (t Tag) Valid() bool {
	return tagPattern.MatchString(string(t))
}

// Carrier is implemented by anything that can be asked whether it carries a tag.
type Carrier interface {
	HasTag(t Tag) bool
}

// HasAll reports whether c carries every tag in tags. An empty list is always satisfied.
//
// Precondition: c must not be nil when tags is non-empty.
func HasAll(c Carrier, tags []Tag) bool {
	for _, t := range tags {
		if !c.HasTag(t) {
			return false
		}
	}
	return true
}

// HasAny reports whether c carries at least one tag in tags.
func HasAny(c Carrier, tags []Tag) bool {
	for _, t := range tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}

// Set is an unordered collection of tags. The zero value is not usable; use NewSet.
type Set map[Tag]struct{}

// NewSet returns a Set holding tags.
func NewSet(tags ...Tag) Set {
	s := make(Set, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// HasTag implements Carrier.
func (s Set) HasTag(t Tag) bool {
	_, ok := s[t]
	return ok
}

// Add inserts t.
func (s Set) Add(t Tag) { s[t] = struct{}{} }

// Remove deletes t; removing an absent tag is a no-op.
func (s Set) Remove(t Tag) { delete(s, t) }

// Sorted returns the tags in lexicographic order.
func (s Set) Sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Counter holds reference-counted tag grants. A tag is present while at
// least one grant for it is outstanding.
// It is safe for concurrent use.
type Counter struct {
	mu     sync.RWMutex
	counts map[Tag]int
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[Tag]int)}
}

// Grant increments the count of every tag in tags.
func (c *Counter) Grant(tags []Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		c.counts[t]++
	}
}

// Release decrements the count of every tag in tags, dropping tags that reach zero.
// Releasing a tag that was never granted is a no-op.
func (c *Counter) Release(tags []Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tags {
		n, ok := c.counts[t]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(c.counts, t)
			continue
		}
		c.counts[t] = n - 1
	}
}

// HasTag implements Carrier.
func (c *Counter) HasTag(t Tag) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[t] > 0
}

// Count returns the number of outstanding grants for t.
func (c *Counter) Count(t Tag) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[t]
}

// Snapshot returns the currently granted tags as a Set.
func (c *Counter) Snapshot() Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := make(Set, len(c.counts))
	for t := range c.counts {
		s[t] = struct{}{}
	}
	return s
}

// Requirement is a tag predicate: the carrier must hold every Require tag and
// none of the Ignore tags. The zero Requirement is always met.
type Requirement struct {
	Require []Tag `yaml:"require" mapstructure:"require"`
	Ignore  []Tag `yaml:"ignore" mapstructure:"ignore"`
}

// IsEmpty reports whether the requirement has no tags at all.
func (r Requirement) IsEmpty() bool {
	return len(r.Require) == 0 && len(r.Ignore) == 0
}

// Met reports whether c satisfies the requirement.
func (r Requirement) Met(c Carrier) bool {
	return HasAll(c, r.Require) && !HasAny(c, r.Ignore)
}

// Tags returns every tag referenced by the requirement.
func (r Requirement) Tags() []Tag {
	out := make([]Tag, 0, len(r.Require)+len(r.Ignore))
	out = append(out, r.Require...)
	return append(out, r.Ignore...)
}

// Any combines carriers: the result carries a tag if any of them does.
type Any []Carrier

// HasTag implements Carrier.
func (a Any) HasTag(t Tag) bool {
	for _, c := range a {
		if c != nil && c.HasTag(t) {
			return true
		}
	}
	return false
}

// Registry is the set of tags declared by configuration.
type Registry struct {
	known Set
}

// NewRegistry builds a Registry from declared tag names.
//
// Postcondition: Returns an error naming every malformed tag.
func NewRegistry(names []string) (*Registry, error) {
	r := &Registry{known: make(Set, len(names))}
	var bad []string
	for _, n := range names {
		t := Tag(n)
		if !t.Valid() {
			bad = append(bad, fmt.Sprintf("%q", n))
			continue
		}
		r.known.Add(t)
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("malformed tags: %s", strings.Join(bad, ", "))
	}
	return r, nil
}

// Known reports whether t was declared. A nil Registry knows every well-formed tag.
func (r *Registry) Known(t Tag) bool {
	if r == nil {
		return t.Valid()
	}
	return r.known.HasTag(t)
}

// Validate returns an error naming every tag in tags that was not declared.
// A nil Registry accepts any well-formed tag.
func (r *Registry) Validate(tags ...Tag) error {
	var unknown []string
	for _, t := range tags {
		if !t.Valid() {
			unknown = append(unknown, fmt.Sprintf("%q (malformed)", t))
			continue
		}
		if r != nil && !r.known.HasTag(t) {
			unknown = append(unknown, fmt.Sprintf("%q", t))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown tags: %s", strings.Join(unknown, ", "))
	}
	return nil
}
