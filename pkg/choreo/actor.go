package choreo

// Facing is the orientation of the actor on the number line.
type Facing string

const (
	FacingForward  Facing = "forward"
	FacingBackward Facing = "backward"
)

// Pose is the position and orientation of the actor.
type Pose struct {
	Position int    `json:"position"`
	Facing   Facing `json:"facing"`
}

// ActorState is the full state of the actor, including applied moves.
type ActorState struct {
	Pose
	History []Move `json:"history"`
}

// Step reports one applied move.
type Step struct {
	Move Move `json:"move"`
	From Pose `json:"from"`
	To   Pose `json:"to"`
}

// Actor interprets moves against a running pose. It is not safe for
// concurrent use; the owner serializes access.
type Actor struct {
	state ActorState
}

// NewActor returns an actor at position 0 facing forward.
func NewActor() *Actor {
	a := &Actor{}
	a.Reset()
	return a
}

// Reset returns the actor to its initial state and clears its history.
func (a *Actor) Reset() {
	a.state = ActorState{Pose: Pose{Position: 0, Facing: FacingForward}}
}

// Pose returns the current pose.
func (a *Actor) Pose() Pose {
	return a.state.Pose
}

// State returns a copy of the current state.
func (a *Actor) State() ActorState {
	s := a.state
	s.History = append([]Move(nil), a.state.History...)
	return s
}

// Move applies a single move. The effect of a step depends on the facing at
// the moment the move is applied, which is what makes reflection
// non-commutative with stepping.
func (a *Actor) Move(m Move) Step {
	from := a.state.Pose
	to := from

	switch m.Kind {
	case KindReflect:
		to.Facing = from.Facing.Toggle()
	case KindStep:
		to.Position += from.Facing.sign() * -1
	case KindInverse:
		to.Position += from.Facing.sign()
	}

	a.state.Pose = to
	a.state.History = append(a.state.History, m)
	return Step{Move: m, From: from, To: to}
}

// Apply consumes one scheduled event and returns the steps it produced, in
// order. A reset produces no steps.
func (a *Actor) Apply(ev ScheduledEvent) []Step {
	switch ev.Kind {
	case CommandReset:
		a.Reset()
		return nil
	case CommandAnimate:
		steps := make([]Step, 0, len(ev.Moves))
		for _, m := range ev.Moves {
			steps = append(steps, a.Move(m))
		}
		return steps
	}
	return nil
}

// Toggle returns the opposite facing.
func (f Facing) Toggle() Facing {
	if f == FacingBackward {
		return FacingForward
	}
	return FacingBackward
}

// sign is +1 when facing forward and -1 when facing backward.
func (f Facing) sign() int {
	if f == FacingBackward {
		return -1
	}
	return 1
}
