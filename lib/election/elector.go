package election

import (
	"context"
	"sync"
	"time"

	"github.com/gpaciente/psync/lib/discovery"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("election")

// DefaultRegisterTimeout bounds the registration call to the leader.
const DefaultRegisterTimeout = 2 * time.Second

// RegisterFunc announces self to the leader.
type RegisterFunc func(ctx context.Context, leader, self discovery.Peer) error

// Config configures an Elector.
type Config struct {
	Self            discovery.Peer
	RegisterTimeout time.Duration
	// OnBecomeLeader and OnBecomeFollower are called on the transition.
	OnBecomeLeader   func()
	OnBecomeFollower func(leader discovery.Peer)
}

// Status is a point-in-time view of the elector.
type Status struct {
	State            State            `json:"state"`
	Leader           *discovery.Peer  `json:"leader,omitempty"`
	IsLeader         bool             `json:"is_leader"`
	Peers            []discovery.Peer `json:"peers"`
	Roster           []Registration   `json:"roster"`
	LastRegistration *time.Time       `json:"last_registration,omitempty"`
	LastError        string           `json:"last_error,omitempty"`
}

// Elector runs the per-instance election state machine.
type Elector struct {
	cfg      Config
	register RegisterFunc
	roster   *Roster
	now      func() time.Time

	mu        sync.RWMutex
	state     State
	role      State
	peers     []discovery.Peer
	leader    discovery.Peer
	hasLeader bool
	lastReg   time.Time
	lastErr   string
}

// NewElector creates an elector in state Scanning. register may be nil, in
// which case followers do not announce themselves.
func NewElector(cfg Config, register RegisterFunc) *Elector {
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = DefaultRegisterTimeout
	}
	return &Elector{
		cfg:      cfg,
		register: register,
		roster:   NewRoster(),
		now:      time.Now,
		state:    StateScanning,
		role:     StateScanning,
	}
}

// BeginScan moves to Scanning. It is hooked to the start of a scan cycle.
func (e *Elector) BeginScan() {
	e.transition(StateScanning)
}

// OnScanCycle recomputes the leader from the peers of a finished cycle. A
// follower then registers with the leader; failures are logged and
// otherwise ignored.
func (e *Elector) OnScanCycle(ctx context.Context, peers []discovery.Peer) {
	e.transition(StateElecting)

	leader, ok := Leader(peers)
	e.mu.Lock()
	e.peers = append([]discovery.Peer(nil), peers...)
	e.leader, e.hasLeader = leader, ok
	e.mu.Unlock()

	if !ok || leader.Addr() == e.cfg.Self.Addr() {
		e.transition(StateLeader)
		if e.changeRole(StateLeader) && e.cfg.OnBecomeLeader != nil {
			e.cfg.OnBecomeLeader()
		}
		return
	}

	e.transition(StateFollower)
	if e.changeRole(StateFollower) {
		e.roster.Clear()
		if e.cfg.OnBecomeFollower != nil {
			e.cfg.OnBecomeFollower(leader)
		}
	}
	e.registerWith(ctx, leader)
}

// registerWith sends the one-shot registration to leader.
func (e *Elector) registerWith(ctx context.Context, leader discovery.Peer) {
	if e.register == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RegisterTimeout)
	defer cancel()

	err := e.register(ctx, leader, e.cfg.Self)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastErr = err.Error()
		Logger.Debugf("registration with leader %s failed: %v", leader.Addr(), err)
		return
	}
	e.lastErr = ""
	e.lastReg = e.now()
	Logger.Debugf("registered with leader %s", leader.Addr())
}

// HandleRegister processes a registration from ip:port. Only the computed
// leader accepts it; the returned message explains a refusal.
func (e *Elector) HandleRegister(ip string, port int) (registered bool, message string) {
	e.mu.RLock()
	hasPeers := len(e.peers) > 0
	leader, hasLeader := e.leader, e.hasLeader
	e.mu.RUnlock()

	switch {
	case !hasPeers || !hasLeader:
		return false, "no peers yet"
	case leader.Addr() != e.cfg.Self.Addr():
		return false, "not the leader"
	}

	if e.roster.Register(ip, port, e.now()) {
		Logger.Infof("follower %s:%d registered", ip, port)
	}
	return true, ""
}

// IsLeader reports whether this instance is the leader of its last cycle.
func (e *Elector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hasLeader && e.leader.Addr() == e.cfg.Self.Addr()
}

// State returns the current state.
func (e *Elector) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Status returns a snapshot for the status endpoint.
func (e *Elector) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{
		State:     e.state,
		IsLeader:  e.hasLeader && e.leader.Addr() == e.cfg.Self.Addr(),
		Peers:     append([]discovery.Peer{}, e.peers...),
		Roster:    e.roster.Snapshot(),
		LastError: e.lastErr,
	}
	if !e.lastReg.IsZero() {
		lastReg := e.lastReg
		st.LastRegistration = &lastReg
	}
	if e.hasLeader {
		leader := e.leader
		st.Leader = &leader
	}
	return st
}

// transition sets the state and reports whether it changed.
func (e *Elector) transition(next State) bool {
	e.mu.Lock()
	prev := e.state
	e.state = next
	e.mu.Unlock()

	if prev != next {
		Logger.Debugf("election: %s -> %s", prev, next)
	}
	return prev != next
}

// changeRole records the outcome of an election and reports whether it
// differs from the previous one.
func (e *Elector) changeRole(role State) bool {
	e.mu.Lock()
	prev := e.role
	e.role = role
	e.mu.Unlock()

	if prev == role {
		return false
	}
	if role == StateLeader {
		Logger.Infof("this instance (%s) is now the leader", e.cfg.Self.Addr())
	} else {
		Logger.Infof("this instance is now a follower of %s", e.leaderAddr())
	}
	return true
}

func (e *Elector) leaderAddr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader.Addr()
}
