package election

import "fmt"

// State is the election state of this instance.
type State int

const (
	StateScanning State = iota
	StateElecting
	StateLeader
	StateFollower
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateElecting:
		return "electing"
	case StateLeader:
		return "leader"
	case StateFollower:
		return "follower"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{StateScanning, StateElecting, StateLeader, StateFollower} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown election state %q", b)
}
