package dragmove

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"taskflow/domain"
)

type stubMover struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, id int64, target domain.Status) error
}

func (s *stubMover) ChangeStatus(ctx context.Context, id int64, target domain.Status) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, id, target)
}

func (s *stubMover) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixedIdentity struct{ actor domain.Actor }

func (f fixedIdentity) CurrentUser() (domain.Actor, bool) { return f.actor, true }

var member = fixedIdentity{actor: domain.Actor{ID: 5, Role: domain.RoleMember}}

func ownTask(status domain.Status) domain.Task {
	return domain.Task{ID: 11, Title: "Own", Status: status, AssigneeID: domain.Int64(5)}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(ownTask(domain.StatusTodo))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"id":11,"status":"TODO","assigneeId":5}` {
		t.Fatalf("unexpected payload: %s", data)
	}
	p, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID != 11 || p.Status != domain.StatusTodo || *p.AssigneeID != 5 {
		t.Fatalf("unexpected payload: %#v", p)
	}
	if _, err := Decode([]byte(`{"id":0}`)); err == nil {
		t.Fatalf("expected incomplete payload to be rejected")
	}
}

func TestMemberDropSkippingColumnIsIgnored(t *testing.T) {
	mover := &stubMover{}
	p := New(mover, member)
	g, err := p.Start(ownTask(domain.StatusTodo))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, err := g.Drop(context.Background(), domain.StatusDone)
	if err != nil || outcome != OutcomeIgnored {
		t.Fatalf("expected ignored drop, got %s %v", outcome, err)
	}
	if mover.count() != 0 {
		t.Fatalf("ignored drop must not reach the mover")
	}
	if g.State() != StateDroppedInvalid {
		t.Fatalf("unexpected state: %s", g.State())
	}
}

func TestDropSameColumnIsNoOp(t *testing.T) {
	mover := &stubMover{}
	g, err := New(mover, member).Start(ownTask(domain.StatusDoing))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, err := g.Drop(context.Background(), domain.StatusDoing)
	if err != nil || outcome != OutcomeSameColumn || mover.count() != 0 {
		t.Fatalf("expected same-column no-op, got %s %v calls=%d", outcome, err, mover.count())
	}
	if g.State() != StateDroppedValid {
		t.Fatalf("unexpected state: %s", g.State())
	}
	if _, err := g.Drop(context.Background(), domain.StatusDone); !errors.Is(err, ErrGestureFinished) {
		t.Fatalf("expected finished gesture, got %v", err)
	}
}

func TestDropCommitsAllowedMove(t *testing.T) {
	var gotID int64
	var gotTarget domain.Status
	mover := &stubMover{fn: func(_ context.Context, id int64, target domain.Status) error {
		gotID, gotTarget = id, target
		return nil
	}}
	g, err := New(mover, member).Start(ownTask(domain.StatusTodo))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	outcome, err := g.Drop(context.Background(), domain.StatusDoing)
	if err != nil || outcome != OutcomeMoved {
		t.Fatalf("expected move, got %s %v", outcome, err)
	}
	if gotID != 11 || gotTarget != domain.StatusDoing {
		t.Fatalf("unexpected move: %d -> %s", gotID, gotTarget)
	}
}

func TestStartRejectsForeignTask(t *testing.T) {
	task := domain.Task{ID: 3, Status: domain.StatusTodo, AssigneeID: domain.Int64(9)}
	if _, err := New(&stubMover{}, member).Start(task); !errors.Is(err, ErrNotDraggable) {
		t.Fatalf("expected not draggable, got %v", err)
	}
	viewer := fixedIdentity{actor: domain.Actor{ID: 9, Role: domain.RoleViewer}}
	if _, err := New(&stubMover{}, viewer).Start(task); !errors.Is(err, ErrNotDraggable) {
		t.Fatalf("viewer should not drag, got %v", err)
	}
}

func TestTargetDisabledWhileMoveInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	mover := &stubMover{fn: func(context.Context, int64, domain.Status) error {
		close(entered)
		<-release
		return nil
	}}
	admin := fixedIdentity{actor: domain.Actor{ID: 1, Role: domain.RoleAdmin}}
	p := New(mover, admin)
	data, _ := Encode(domain.Task{ID: 1, Status: domain.StatusTodo})

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := p.Drop(context.Background(), data, domain.StatusDone)
		done <- outcome
	}()
	<-entered

	if p.Accepts(domain.StatusDone) {
		t.Fatalf("target should be disabled while a move is in flight")
	}
	outcome, err := p.Drop(context.Background(), data, domain.StatusDone)
	if err != nil || outcome != OutcomeBusy {
		t.Fatalf("expected busy, got %s %v", outcome, err)
	}
	close(release)

	select {
	case first := <-done:
		if first != OutcomeMoved {
			t.Fatalf("unexpected first outcome: %s", first)
		}
	case <-time.After(time.Second):
		t.Fatalf("first drop did not finish")
	}
	if !p.Accepts(domain.StatusDone) || mover.count() != 1 {
		t.Fatalf("expected target re-enabled after one move, calls=%d", mover.count())
	}
}

func TestDropMalformedPayloadIgnored(t *testing.T) {
	mover := &stubMover{}
	outcome, err := New(mover, member).Drop(context.Background(), []byte("not json"), domain.StatusDoing)
	if err != nil || outcome != OutcomeIgnored || mover.count() != 0 {
		t.Fatalf("expected ignored drop, got %s %v", outcome, err)
	}
}

func TestMoverFailureSurfaces(t *testing.T) {
	mover := &stubMover{fn: func(context.Context, int64, domain.Status) error {
		return &domain.Failure{Kind: domain.KindForbidden, Status: 403, Op: "changeStatus"}
	}}
	g, err := New(mover, member).Start(ownTask(domain.StatusTodo))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := g.Drop(context.Background(), domain.StatusDoing); domain.KindOf(err) != domain.KindForbidden {
		t.Fatalf("expected forbidden failure, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	g, err := New(&stubMover{}, member).Start(ownTask(domain.StatusTodo))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	g.Cancel()
	if g.State() != StateCancelled {
		t.Fatalf("unexpected state: %s", g.State())
	}
	if _, err := g.Drop(context.Background(), domain.StatusDoing); !errors.Is(err, ErrGestureFinished) {
		t.Fatalf("expected cancelled gesture to refuse drops, got %v", err)
	}
}

func TestCardLockedWhileItsMoveInFlight(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	mover := &stubMover{fn: func(_ context.Context, _ int64, target domain.Status) error {
		if target == domain.StatusDoing {
			close(entered)
			<-release
		}
		return nil
	}}
	admin := fixedIdentity{actor: domain.Actor{ID: 1, Role: domain.RoleAdmin}}
	p := New(mover, admin)
	data, _ := Encode(domain.Task{ID: 7, Status: domain.StatusTodo})
	other, _ := Encode(domain.Task{ID: 8, Status: domain.StatusTodo})

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := p.Drop(context.Background(), data, domain.StatusDoing)
		done <- outcome
	}()
	<-entered

	if !p.Moving(7) {
		t.Fatalf("expected card 7 to be marked as moving")
	}
	outcome, err := p.Drop(context.Background(), data, domain.StatusDone)
	if err != nil || outcome != OutcomeBusy {
		t.Fatalf("expected busy for the same card on another column, got %s %v", outcome, err)
	}
	if outcome, err := p.Drop(context.Background(), other, domain.StatusDone); err != nil || outcome != OutcomeMoved {
		t.Fatalf("expected another card to move freely, got %s %v", outcome, err)
	}
	close(release)

	select {
	case first := <-done:
		if first != OutcomeMoved {
			t.Fatalf("unexpected first outcome: %s", first)
		}
	case <-time.After(time.Second):
		t.Fatalf("first drop did not finish")
	}
	if p.Moving(7) || mover.count() != 2 {
		t.Fatalf("expected card released after two moves, calls=%d", mover.count())
	}
}
