package ability

// State is the cooldown half of the ability state machine. Executing is an
// orthogonal flag reported by IsExecuting.
type State int

const (
	// Idle means no cooldown remains.
	Idle State = iota
	// OnCooldown means cooldown > 0; TryUse is rejected.
	OnCooldown
)

// String returns the state label.
func (s State) String() string {
	if s == OnCooldown {
		return "on_cooldown"
	}
	return "idle"
}

// Ability is the runtime wrapper binding one Definition to one owner.
type Ability struct {
	def               *Definition
	cooldownRemaining float64
	tasks             []*Task
	listeners         listeners
}

// ID returns the definition id.
func (a *Ability) ID() string { return a.def.ID }

// Definition returns the immutable definition.
func (a *Ability) Definition() *Definition { return a.def }

// CooldownRemaining returns the seconds left before the ability is usable.
//
// Postcondition: Returns >= 0.
func (a *Ability) CooldownRemaining() float64 { return a.cooldownRemaining }

// State returns Idle or OnCooldown.
func (a *Ability) State() State {
	if a.cooldownRemaining > 0 {
		return OnCooldown
	}
	return Idle
}

// IsExecuting reports whether at least one use is in flight.
func (a *Ability) IsExecuting() bool { return len(a.tasks) > 0 }

// InFlight returns the number of executions in flight.
func (a *Ability) InFlight() int { return len(a.tasks) }

func (a *Ability) dropTask(t *Task) bool {
	for i, x := range a.tasks {
		if x == t {
			a.tasks = append(a.tasks[:i], a.tasks[i+1:]...)
			return true
		}
	}
	return false
}
