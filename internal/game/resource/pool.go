// Package resource implements owner-scoped, bounded numeric resources such as
// mana and stamina.
package resource

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Key names a resource. Keys are declared in configuration and validated with
// Keys at load time.
type Key string

// Pool is one bounded resource.
//
// Invariant: 0 <= Current <= Max.
type Pool struct {
	Current        float64
	Max            float64
	RegenPerSecond float64
}

// Spec is the configured starting state for one resource.
type Spec struct {
	Key            Key      `mapstructure:"key" yaml:"key"`
	Max            float64  `mapstructure:"max" yaml:"max"`
	// Start is the initial value; nil begins the pool full.
	Start          *float64 `mapstructure:"start" yaml:"start"`
	RegenPerSecond float64  `mapstructure:"regen_per_second" yaml:"regen_per_second"`
}

// StartAt returns a Start value of v.
func StartAt(v float64) *float64 { return &v }

// Cost is a required payment of Amount from the pool named by Resource.
type Cost struct {
	Resource Key     `yaml:"resource"`
	Amount   float64 `yaml:"amount"`
}

// Change reports the new current value of a resource after a mutation.
type Change struct {
	Key   Key
	Value float64
}

// Keys is the set of resource keys declared in configuration.
type Keys map[Key]struct{}

// NewKeys returns a Keys set built from specs.
func NewKeys(specs []Spec) Keys {
	k := make(Keys, len(specs))
	for _, s := range specs {
		k[s.Key] = struct{}{}
	}
	return k
}

// Has reports whether key was declared. A nil Keys accepts every key.
func (k Keys) Has(key Key) bool {
	if k == nil {
		return true
	}
	_, ok := k[key]
	return ok
}

// Pools is the set of resources owned by one entity.
// It is not safe for concurrent use; the owning ability system serialises access.
type Pools struct {
	pools map[Key]*Pool
}

// NewPools builds Pools from configured specs. Start values above Max are
// clamped; a nil Start begins the pool full.
//
// Postcondition: Returns an error if any spec has an empty key, a negative
// or NaN max or start, a negative regen rate, or a duplicate key.
func NewPools(specs []Spec) (*Pools, error) {
	p := &Pools{pools: make(map[Key]*Pool, len(specs))}
	var errs []string
	for _, s := range specs {
		switch {
		case s.Key == "":
			errs = append(errs, "resource key must not be empty")
			continue
		case s.Max < 0 || math.IsNaN(s.Max):
			errs = append(errs, fmt.Sprintf("resource %q: max must be >= 0, got %g", s.Key, s.Max))
			continue
		case s.Start != nil && (*s.Start < 0 || math.IsNaN(*s.Start)):
			errs = append(errs, fmt.Sprintf("resource %q: start must be >= 0, got %g", s.Key, *s.Start))
			continue
		case s.RegenPerSecond < 0:
			errs = append(errs, fmt.Sprintf("resource %q: regen_per_second must be >= 0, got %g", s.Key, s.RegenPerSecond))
			continue
		}
		if _, dup := p.pools[s.Key]; dup {
			errs = append(errs, fmt.Sprintf("resource %q declared twice", s.Key))
			continue
		}
		start := s.Max
		if s.Start != nil {
			start = *s.Start
		}
		p.pools[s.Key] = &Pool{Current: clamp(start, s.Max), Max: s.Max, RegenPerSecond: s.RegenPerSecond}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid resources: %s", strings.Join(errs, "; "))
	}
	return p, nil
}

// Has reports whether the pool for key exists.
func (p *Pools) Has(key Key) bool {
	_, ok := p.pools[key]
	return ok
}

// Get returns a copy of the pool for key.
//
// Postcondition: Returns (pool, true) if found, or (Pool{}, false) otherwise.
func (p *Pools) Get(key Key) (Pool, bool) {
	pool, ok := p.pools[key]
	if !ok {
		return Pool{}, false
	}
	return *pool, true
}

// Current returns the current value of key, or 0 if the pool does not exist.
func (p *Pools) Current(key Key) float64 {
	if pool, ok := p.pools[key]; ok {
		return pool.Current
	}
	return 0
}

// Keys returns the pool keys in lexicographic order.
func (p *Pools) Keys() []Key {
	out := make([]Key, 0, len(p.pools))
	for k := range p.pools {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Set assigns the current value of key, clamped to [0, Max].
//
// Postcondition: Returns false if the pool does not exist or value is NaN.
func (p *Pools) Set(key Key, value float64) (Change, bool) {
	pool, ok := p.pools[key]
	if !ok || math.IsNaN(value) {
		return Change{}, false
	}
	pool.Current = clamp(value, pool.Max)
	return Change{Key: key, Value: pool.Current}, true
}

// SetMax assigns the maximum of key and clamps the current value to it.
//
// Precondition: max >= 0.
// Postcondition: Returns false if the pool does not exist or max is negative.
func (p *Pools) SetMax(key Key, max float64) (Change, bool) {
	pool, ok := p.pools[key]
	if !ok || max < 0 || math.IsNaN(max) {
		return Change{}, false
	}
	pool.Max = max
	pool.Current = clamp(pool.Current, max)
	return Change{Key: key, Value: pool.Current}, true
}

// Consume subtracts amount from key if the pool holds at least amount.
//
// Precondition: amount >= 0.
// Postcondition: Returns false and leaves the pool unchanged if the pool is
// missing, amount is negative or NaN, or the pool holds less than amount.
func (p *Pools) Consume(key Key, amount float64) (Change, bool) {
	pool, ok := p.pools[key]
	if !ok || !validAmount(amount) || pool.Current < amount {
		return Change{}, false
	}
	pool.Current = clamp(pool.Current-amount, pool.Max)
	return Change{Key: key, Value: pool.Current}, true
}

// Restore adds amount to key, capped at Max.
//
// Precondition: amount >= 0.
// Postcondition: Returns false if the pool is missing or amount is negative
// or NaN.
func (p *Pools) Restore(key Key, amount float64) (Change, bool) {
	pool, ok := p.pools[key]
	if !ok || !validAmount(amount) {
		return Change{}, false
	}
	pool.Current = clamp(pool.Current+amount, pool.Max)
	return Change{Key: key, Value: pool.Current}, true
}

// CanAfford reports whether every cost can be paid simultaneously. Costs
// naming the same resource are summed. A negative or NaN amount is never
// affordable.
func (p *Pools) CanAfford(costs []Cost) bool {
	need := make(map[Key]float64, len(costs))
	for _, c := range costs {
		if !validAmount(c.Amount) {
			return false
		}
		need[c.Resource] += c.Amount
	}
	for key, amount := range need {
		pool, ok := p.pools[key]
		if !ok || pool.Current < amount {
			return false
		}
	}
	return true
}

// ConsumeAll pays every cost or none of them.
//
// Postcondition: On false no pool has been modified; on true every listed
// resource has been reduced and one Change per distinct key is returned.
func (p *Pools) ConsumeAll(costs []Cost) ([]Change, bool) {
	if !p.CanAfford(costs) {
		return nil, false
	}
	touched := make(map[Key]struct{}, len(costs))
	var changes []Change
	for _, c := range costs {
		pool := p.pools[c.Resource]
		pool.Current = clamp(pool.Current-c.Amount, pool.Max)
		touched[c.Resource] = struct{}{}
	}
	for _, key := range p.Keys() {
		if _, ok := touched[key]; ok {
			changes = append(changes, Change{Key: key, Value: p.pools[key].Current})
		}
	}
	return changes, true
}

// Regen advances regeneration by dt seconds.
//
// Precondition: dt >= 0.
// Postcondition: No pool exceeds Max; only pools whose value moved are reported.
func (p *Pools) Regen(dt float64) []Change {
	if dt <= 0 {
		return nil
	}
	var changes []Change
	for _, key := range p.Keys() {
		pool := p.pools[key]
		if pool.RegenPerSecond <= 0 || pool.Current >= pool.Max {
			continue
		}
		pool.Current = clamp(pool.Current+pool.RegenPerSecond*dt, pool.Max)
		changes = append(changes, Change{Key: key, Value: pool.Current})
	}
	return changes
}

func validAmount(v float64) bool { return v >= 0 && !math.IsNaN(v) }

func clamp(v, max float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
