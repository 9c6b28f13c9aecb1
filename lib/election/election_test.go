package election

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/gpaciente/psync/lib/discovery"
)

func peer(ip string, port int) discovery.Peer {
	return discovery.Peer{IP: ip, Port: port}
}

func TestLeaderIsDeterministic(t *testing.T) {
	peers := []discovery.Peer{
		peer("192.168.0.20", 5000),
		peer("192.168.0.3", 5001),
		peer("not-an-ip", 1),
		peer("192.168.0.3", 5000),
		peer("192.168.0.100", 80),
		peer("", 1),
	}
	want := peer("192.168.0.3", 5000)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		shuffled := append([]discovery.Peer(nil), peers...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, ok := Leader(shuffled)
		if !ok || got.Addr() != want.Addr() {
			t.Fatalf("run %d: leader = %s, want %s (order %v)", i, got.Addr(), want.Addr(), shuffled)
		}
	}

	if _, ok := Leader(nil); ok {
		t.Error("expected no leader for an empty set")
	}
}

func TestLess(t *testing.T) {
	tests := []struct {
		a, b discovery.Peer
		want bool
	}{
		{peer("10.0.0.2", 1), peer("10.0.0.10", 1), true}, // numeric, not lexical
		{peer("10.0.0.10", 1), peer("10.0.0.2", 1), false},
		{peer("10.0.0.2", 1), peer("10.0.0.2", 2), true},
		{peer("10.0.0.2", 1), peer("bogus", 1), true},
		{peer("bogus", 1), peer("10.0.0.2", 1), false},
		{peer("::1", 1), peer("10.0.0.2", 1), false},
	}
	for _, tt := range tests {
		if got := Less(tt.a, tt.b); got != tt.want {
			t.Errorf("Less(%s, %s) = %v, want %v", tt.a.Addr(), tt.b.Addr(), got, tt.want)
		}
	}
}

func TestRoster(t *testing.T) {
	r := NewRoster()
	t0 := time.Unix(100, 0)
	if !r.Register("10.0.0.2", 5000, t0) {
		t.Error("first registration should be new")
	}
	if r.Register("10.0.0.2", 5000, t0.Add(time.Minute)) {
		t.Error("second registration should refresh, not add")
	}
	r.Register("10.0.0.1", 5000, t0)

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].IP != "10.0.0.1" {
		t.Fatalf("unexpected roster %+v", snap)
	}
	if !snap[1].RegisteredAt.Equal(t0) || !snap[1].LastSeen.Equal(t0.Add(time.Minute)) {
		t.Errorf("refresh did not update only LastSeen: %+v", snap[1])
	}
}

func TestElectorFollowerRegisters(t *testing.T) {
	self := peer("10.0.0.5", 5000)
	leader := peer("10.0.0.2", 5000)

	var calls int
	var becameFollower int
	e := NewElector(Config{
		Self:             self,
		OnBecomeFollower: func(discovery.Peer) { becameFollower++ },
	}, func(ctx context.Context, to, from discovery.Peer) error {
		calls++
		if to.Addr() != leader.Addr() || from.Addr() != self.Addr() {
			t.Errorf("registered %s with %s", from.Addr(), to.Addr())
		}
		if _, ok := ctx.Deadline(); !ok {
			t.Error("registration without timeout")
		}
		return nil
	})

	if e.State() != StateScanning {
		t.Fatalf("unexpected initial state %s", e.State())
	}

	for i := 0; i < 3; i++ {
		e.BeginScan()
		e.OnScanCycle(context.Background(), []discovery.Peer{self, leader})
	}

	if e.State() != StateFollower || e.IsLeader() {
		t.Errorf("expected follower, got %s", e.State())
	}
	if calls != 3 {
		t.Errorf("expected one registration per cycle, got %d", calls)
	}
	if becameFollower != 1 {
		t.Errorf("follower hook fired %d times", becameFollower)
	}

	st := e.Status()
	if st.Leader == nil || st.Leader.Addr() != leader.Addr() || st.LastRegistration == nil {
		t.Errorf("unexpected status %+v", st)
	}

	if ok, msg := e.HandleRegister("10.0.0.9", 5000); ok || msg == "" {
		t.Errorf("follower accepted a registration (msg %q)", msg)
	}
}

func TestElectorRegistrationErrorsAreSwallowed(t *testing.T) {
	self := peer("10.0.0.5", 5000)
	e := NewElector(Config{Self: self}, func(context.Context, discovery.Peer, discovery.Peer) error {
		return errors.New("connection refused")
	})
	e.OnScanCycle(context.Background(), []discovery.Peer{self, peer("10.0.0.1", 5000)})

	st := e.Status()
	if st.State != StateFollower || st.LastError == "" || st.LastRegistration != nil {
		t.Errorf("unexpected status after failed registration %+v", st)
	}
}

func TestElectorLeaderAcceptsRegistrations(t *testing.T) {
	self := peer("10.0.0.1", 5000)
	var becameLeader int
	e := NewElector(Config{Self: self, OnBecomeLeader: func() { becameLeader++ }}, func(_ context.Context, to, _ discovery.Peer) error {
		if to.Addr() == self.Addr() {
			t.Error("leader must not register with itself")
		}
		return nil
	})

	if ok, msg := e.HandleRegister("10.0.0.7", 5000); ok || msg != "no peers yet" {
		t.Errorf("registration before the first cycle: ok=%v msg=%q", ok, msg)
	}

	e.OnScanCycle(context.Background(), []discovery.Peer{peer("10.0.0.7", 5000), self})
	e.OnScanCycle(context.Background(), []discovery.Peer{peer("10.0.0.7", 5000), self})
	if e.State() != StateLeader || !e.IsLeader() || becameLeader != 1 {
		t.Fatalf("expected leader once, got %s (hook %d)", e.State(), becameLeader)
	}

	if ok, _ := e.HandleRegister("10.0.0.7", 5000); !ok {
		t.Error("leader rejected a registration")
	}
	e.HandleRegister("10.0.0.7", 5000)
	if roster := e.Status().Roster; len(roster) != 1 {
		t.Errorf("expected one follower in the roster, got %+v", roster)
	}

	// a smaller address appears, this instance steps down and forgets its roster
	e.OnScanCycle(context.Background(), []discovery.Peer{peer("10.0.0.0", 5000), self})
	if e.IsLeader() || len(e.Status().Roster) != 0 {
		t.Errorf("expected step down with empty roster, got %+v", e.Status())
	}
}

func TestStateText(t *testing.T) {
	b, _ := StateFollower.MarshalText()
	if string(b) != "follower" || StateElecting.String() != "electing" {
		t.Errorf("unexpected state names %s %s", b, StateElecting)
	}

	var st State
	if err := st.UnmarshalText([]byte("leader")); err != nil || st != StateLeader {
		t.Errorf("UnmarshalText(leader) = %v, %v", st, err)
	}
	if err := st.UnmarshalText([]byte("king")); err == nil {
		t.Error("expected error for unknown state")
	}
}
