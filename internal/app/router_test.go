package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/beamchat/relay/internal/core"
	"github.com/beamchat/relay/internal/domain"
)

// fakeSignal records everything the router tries to deliver.
type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   error
}

func (f *fakeSignal) TrySend(fr core.Frame, class core.EventClass) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {}

func (f *fakeSignal) received(t *testing.T) []core.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]core.Envelope, 0, len(f.frames))
	for _, fr := range f.frames {
		var env core.Envelope
		if err := json.Unmarshal(fr, &env); err != nil {
			t.Fatalf("undecodable frame %q: %v", fr, err)
		}
		out = append(out, env)
	}
	return out
}

func (f *fakeSignal) countOf(t *testing.T, event string) int {
	t.Helper()
	n := 0
	for _, env := range f.received(t) {
		if env.Event == event {
			n++
		}
	}
	return n
}

type member struct {
	cid      domain.ConnID
	sig      *fakeSignal
	canceled *bool
}

func newTestRouter(presence bool) *Router {
	rt := &Router{
		Registry:          NewRegistry(),
		Rooms:             NewMembership(),
		Policy:            ClassPolicy{},
		PresenceBroadcast: presence,
	}
	rt.Typing = NewTypingCoordinator(rt, time.Hour)
	return rt
}

func admit(rt *Router, user domain.UserID, name string) member {
	sig := &fakeSignal{}
	canceled := false
	cid := rt.Registry.Admit(
		core.NewMemberSession(domain.Identity{UserID: user, Name: name}, sig),
		func() { canceled = true },
	)
	return member{cid: cid, sig: sig, canceled: &canceled}
}

func TestRelayMessageIncludesSender(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	c := admit(rt, "uc", "Cara")
	for _, m := range []member{a, b, c} {
		rt.OnJoin(m.cid, "conv-1")
	}

	payload := json.RawMessage(`{"_id":"m1","content":"hello"}`)
	rt.OnRelayMessage(a.cid, "conv-1", payload)

	for name, m := range map[string]member{"sender": a, "b": b, "c": c} {
		envs := m.sig.received(t)
		if len(envs) != 1 || envs[0].Event != core.EventReceiveMessage {
			t.Fatalf("%s: events = %+v, want one receive_message", name, envs)
		}
		if string(envs[0].Data) != string(payload) {
			t.Errorf("%s: payload = %s, want %s", name, envs[0].Data, payload)
		}
	}
}

func TestTypingExcludesSender(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	c := admit(rt, "uc", "Cara")
	for _, m := range []member{a, b, c} {
		rt.OnJoin(m.cid, "conv-1")
	}

	rt.OnTyping(a.cid, "conv-1")

	if got := a.sig.countOf(t, core.EventUserTyping); got != 0 {
		t.Errorf("sender received %d user_typing, want 0", got)
	}
	for name, m := range map[string]member{"b": b, "c": c} {
		envs := m.sig.received(t)
		if len(envs) != 1 || envs[0].Event != core.EventUserTyping {
			t.Fatalf("%s: events = %+v, want one user_typing", name, envs)
		}
		var notice core.TypingNotice
		if err := json.Unmarshal(envs[0].Data, &notice); err != nil {
			t.Fatal(err)
		}
		if notice.UserID != "ua" || notice.ConversationID != "conv-1" {
			t.Errorf("%s: notice = %+v", name, notice)
		}
	}
}

func TestEventsFromNonMembersAreDropped(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(b.cid, "conv-1")

	// A never joined conv-1.
	rt.OnTyping(a.cid, "conv-1")
	rt.OnRelayMessage(a.cid, "conv-1", json.RawMessage(`{"x":1}`))

	if got := len(b.sig.received(t)); got != 0 {
		t.Errorf("b received %d events from a non-member, want 0", got)
	}
}

func TestJoinIsSilentByDefault(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(a.cid, "conv-1")
	rt.OnJoin(b.cid, "conv-1")
	rt.OnLeave(b.cid, "conv-1")

	if got := len(a.sig.received(t)); got != 0 {
		t.Errorf("a received %d events for silent join/leave, want 0", got)
	}
}

func TestPresenceBroadcastWhenEnabled(t *testing.T) {
	rt := newTestRouter(true)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(a.cid, "conv-1")
	rt.OnJoin(b.cid, "conv-1")

	if got := a.sig.countOf(t, core.EventUserJoined); got != 1 {
		t.Errorf("a saw %d user_joined, want 1 (for b)", got)
	}
	if got := b.sig.countOf(t, core.EventUserJoined); got != 0 {
		t.Errorf("b saw %d user_joined, want 0 (own join is not echoed)", got)
	}

	rt.OnDisconnect(b.cid)
	if got := a.sig.countOf(t, core.EventUserLeft); got != 1 {
		t.Errorf("a saw %d user_left after b disconnected, want 1", got)
	}
}

func TestDisconnectCleansEverything(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(a.cid, "conv-1")
	rt.OnJoin(a.cid, "conv-2")
	rt.OnJoin(b.cid, "conv-1")

	rt.OnDisconnect(a.cid)

	if _, ok := rt.Registry.Session(a.cid); ok {
		t.Error("registry still holds the disconnected connection")
	}
	if rt.Rooms.Contains("conv-1", a.cid) || rt.Rooms.Contains("conv-2", a.cid) {
		t.Error("membership survives disconnect")
	}
	// conv-2 had only A; it must not linger as an empty room.
	for _, info := range rt.Rooms.Rooms() {
		if info.ID == "conv-2" {
			t.Error("empty room conv-2 still listed")
		}
	}

	// A later broadcast must not target the dead connection.
	rt.OnRelayMessage(b.cid, "conv-1", json.RawMessage(`{"x":1}`))
	if got := a.sig.countOf(t, core.EventReceiveMessage); got != 0 {
		t.Errorf("disconnected conn received %d messages, want 0", got)
	}
	if got := b.sig.countOf(t, core.EventReceiveMessage); got != 1 {
		t.Errorf("b received %d messages, want 1", got)
	}

	// Disconnect is idempotent.
	rt.OnDisconnect(a.cid)
}

func TestMessageBackpressureKicksReceiver(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(a.cid, "conv-1")
	rt.OnJoin(b.cid, "conv-1")
	b.sig.fail = core.ErrBackpressure

	rt.OnRelayMessage(a.cid, "conv-1", json.RawMessage(`{"x":1}`))

	if !*b.canceled {
		t.Error("overflowing receiver was not kicked on a message frame")
	}
	if *a.canceled {
		t.Error("healthy sender was kicked")
	}
}

func TestTypingBackpressureDoesNotKick(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(a.cid, "conv-1")
	rt.OnJoin(b.cid, "conv-1")
	b.sig.fail = core.ErrBackpressure

	rt.OnTyping(a.cid, "conv-1")

	if *b.canceled {
		t.Error("receiver kicked over a droppable typing frame")
	}
}

func TestMembersSnapshot(t *testing.T) {
	rt := newTestRouter(false)
	a := admit(rt, "ua", "Alice")
	b := admit(rt, "ub", "Bob")
	rt.OnJoin(a.cid, "conv-1")
	rt.OnJoin(b.cid, "conv-1")

	got := rt.MembersSnapshot("conv-1")
	if len(got) != 2 {
		t.Fatalf("snapshot has %d members, want 2", len(got))
	}
	names := map[domain.UserID]string{}
	for _, m := range got {
		names[m.ID] = m.Name
	}
	if names["ua"] != "Alice" || names["ub"] != "Bob" {
		t.Errorf("snapshot = %+v", got)
	}
}
