package targeting

import "github.com/cory-johannsen/gas/internal/game/target"

// Relation selects which side of the caster a payload may land on.
type Relation int

const (
	// RelationAny accepts every living, targetable candidate.
	RelationAny Relation = iota
	// RelationHostile rejects targets friendly to the caster (damage).
	RelationHostile
	// RelationFriendly rejects targets hostile to the caster (heals, buffs).
	RelationFriendly
)

// String returns the relation label.
func (r Relation) String() string {
	switch r {
	case RelationHostile:
		return "hostile"
	case RelationFriendly:
		return "friendly"
	default:
		return "any"
	}
}

// FilterOptions tunes Filter.
type FilterOptions struct {
	Relation Relation
	// AllowSelf admits the caster; set for the Self shape or include_self.
	AllowSelf bool
	// RejectFullHealth drops targets with CurrentHealth >= MaxHealth (heals
	// without overheal).
	RejectFullHealth bool
}

// Filter applies the validity checks in order: exists, alive and targetable;
// not the caster unless AllowSelf; relationship; full-health rejection.
// The caster is always friendly to itself.
//
// Postcondition: The returned slice preserves candidate order and contains no duplicates.
func Filter(caster target.Target, candidates []target.Target, opts FilterOptions) []target.Target {
	out := make([]target.Target, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == nil || !c.IsAlive() || !c.IsTargetable() {
			continue
		}
		if _, dup := seen[c.ID()]; dup {
			continue
		}
		isSelf := caster != nil && c.ID() == caster.ID()
		if isSelf && !opts.AllowSelf {
			continue
		}
		if caster != nil && !isSelf {
			switch opts.Relation {
			case RelationHostile:
				if c.IsFriendlyTo(caster) {
					continue
				}
			case RelationFriendly:
				if !c.IsFriendlyTo(caster) {
					continue
				}
			}
		}
		if isSelf && opts.Relation == RelationHostile {
			continue
		}
		if opts.RejectFullHealth && c.CurrentHealth() >= c.MaxHealth() {
			continue
		}
		seen[c.ID()] = struct{}{}
		out = append(out, c)
	}
	return out
}
