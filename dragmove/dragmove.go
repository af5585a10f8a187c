// Package dragmove implements the drag and drop protocol for moving cards between board
// columns.
package dragmove

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"

	"taskflow/domain"
	"taskflow/permission"
)

// State is the position of a drag gesture in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateDroppedValid
	StateDroppedInvalid
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateDroppedValid:
		return "dropped-valid"
	case StateDroppedInvalid:
		return "dropped-invalid"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Outcome says what a drop did.
type Outcome string

const (
	// OutcomeMoved means the status change was sent and the board reloaded.
	OutcomeMoved Outcome = "moved"
	// OutcomeSameColumn means the card was dropped where it already was.
	OutcomeSameColumn Outcome = "same-column"
	// OutcomeIgnored means the drop was not allowed or the payload was unreadable.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeBusy means a move into the target column, or of the same card, was already
	// in flight.
	OutcomeBusy Outcome = "busy"
)

var (
	// ErrNotDraggable is returned when the actor may not pick up the card.
	ErrNotDraggable = errors.New("task is not draggable")
	// ErrGestureFinished is returned when a gesture is reused after drop or cancel.
	ErrGestureFinished = errors.New("drag gesture already finished")
)

// Payload is the transfer data carried for the duration of a drag.
type Payload = domain.TaskRef

// Mover performs the status change. The board engine satisfies it.
type Mover interface {
	ChangeStatus(ctx context.Context, id int64, target domain.Status) error
}

// Identity supplies the current actor.
type Identity interface {
	CurrentUser() (domain.Actor, bool)
}

// Encode serializes the movable state of task.
func Encode(task domain.Task) ([]byte, error) {
	return sonic.Marshal(task.Ref())
}

// Decode parses a transfer payload. Anything without a task id and status is rejected.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := sonic.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode drag payload: %w", err)
	}
	if p.ID == 0 || !p.Status.Valid() {
		return Payload{}, errors.New("decode drag payload: missing id or status")
	}
	return p, nil
}

// Protocol validates drops and gates each target column, and each card, while a move
// involving it is in flight.
type Protocol struct {
	mover    Mover
	identity Identity

	mu       sync.Mutex
	inFlight map[domain.Status]bool
	moving   map[int64]bool
}

// New creates a protocol that commits moves through mover.
func New(mover Mover, identity Identity) *Protocol {
	return &Protocol{mover: mover, identity: identity, inFlight: map[domain.Status]bool{}, moving: map[int64]bool{}}
}

// Start begins a drag gesture for task.
func (p *Protocol) Start(task domain.Task) (*Gesture, error) {
	actor, ok := p.identity.CurrentUser()
	if !ok || !permission.CanMoveTask(actor, task.Ref(), "") {
		return nil, ErrNotDraggable
	}
	data, err := Encode(task)
	if err != nil {
		return nil, err
	}
	return &Gesture{protocol: p, payload: data, state: StateDragging}, nil
}

// Accepts reports whether the target column currently takes drops.
func (p *Protocol) Accepts(target domain.Status) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.inFlight[target]
}

// Moving reports whether a move of the task is in flight.
func (p *Protocol) Moving(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moving[id]
}

// Drop handles a payload released over the target column. Disallowed or unreadable drops
// are ignored without an error. The returned error comes only from the mover.
func (p *Protocol) Drop(ctx context.Context, data []byte, target domain.Status) (Outcome, error) {
	payload, err := Decode(data)
	if err != nil || !target.Valid() {
		return OutcomeIgnored, nil
	}
	if payload.Status == target {
		return OutcomeSameColumn, nil
	}
	actor, ok := p.identity.CurrentUser()
	if !ok || !permission.CanMoveTask(actor, payload, target) {
		return OutcomeIgnored, nil
	}

	p.mu.Lock()
	if p.inFlight[target] || p.moving[payload.ID] {
		p.mu.Unlock()
		return OutcomeBusy, nil
	}
	p.inFlight[target] = true
	p.moving[payload.ID] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inFlight, target)
		delete(p.moving, payload.ID)
		p.mu.Unlock()
	}()

	if err := p.mover.ChangeStatus(ctx, payload.ID, target); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeMoved, nil
}

// Gesture is one drag from pick-up to drop or cancel.
type Gesture struct {
	protocol *Protocol
	payload  []byte

	mu    sync.Mutex
	state State
}

// Payload returns the serialized transfer data.
func (g *Gesture) Payload() []byte {
	return g.payload
}

// State returns where the gesture is in its lifecycle.
func (g *Gesture) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Drop releases the gesture over target.
func (g *Gesture) Drop(ctx context.Context, target domain.Status) (Outcome, error) {
	g.mu.Lock()
	if g.state != StateDragging {
		g.mu.Unlock()
		return OutcomeIgnored, ErrGestureFinished
	}
	g.mu.Unlock()

	outcome, err := g.protocol.Drop(ctx, g.payload, target)

	g.mu.Lock()
	if outcome == OutcomeMoved || outcome == OutcomeSameColumn {
		g.state = StateDroppedValid
	} else {
		g.state = StateDroppedInvalid
	}
	g.mu.Unlock()
	return outcome, err
}

// Cancel abandons the gesture.
func (g *Gesture) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateDragging {
		g.state = StateCancelled
	}
}
