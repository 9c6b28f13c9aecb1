// Package conflict lists records flagged by the reconciler and applies the
// operator's resolution to them.
package conflict

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("conflict")

var (
	ErrNotFound       = errors.New("record not found")
	ErrNotInConflict  = errors.New("record is not in conflict")
	ErrRemoteRequired = errors.New("dados_remotos is required for this action")
	ErrUnknownAction  = errors.New("unknown action")
)

// --------------------------------------------------------------------------
// Actions
// --------------------------------------------------------------------------

// Action is the resolution chosen by an operator.
type Action string

const (
	ActionKeepLocal    Action = "manter_local"
	ActionAcceptRemote Action = "aceitar_remoto"
	ActionMerge        Action = "mesclar"
)

// ParseAction validates the acao field of a resolution request.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionKeepLocal, ActionAcceptRemote, ActionMerge:
		return a, nil
	}
	return "", fmt.Errorf("%w %q (expected manter_local, aceitar_remoto or mesclar)", ErrUnknownAction, s)
}

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// List holds the records in conflict, per collection.
type List struct {
	Patients     []*record.Record `json:"pacientes"`
	Appointments []*record.Record `json:"agendamentos"`
}

// Manager lists and resolves conflicts in a store.
type Manager struct {
	store   store.IStore
	localID string
	now     func() record.Timestamp
}

func NewManager(s store.IStore, localID string) *Manager {
	return &Manager{store: s, localID: localID, now: record.Now}
}

// List returns every record with status conflito.
func (m *Manager) List() (*List, error) {
	out := &List{
		Patients:     []*record.Record{},
		Appointments: []*record.Record{},
	}
	for _, kind := range record.Kinds {
		recs, err := m.store.Scan(kind, true)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind.Collection(), err)
		}
		for _, r := range recs {
			if !r.InConflict() {
				continue
			}
			if kind == record.KindPatient {
				out.Patients = append(out.Patients, r)
			} else {
				out.Appointments = append(out.Appointments, r)
			}
		}
	}
	return out, nil
}

// Resolve applies action to the conflicting record kind/id. remote carries
// the dados_remotos of the request and may be nil for keep-local and
// accept-remote. The resolved record is returned.
func (m *Manager) Resolve(kind record.Kind, id string, action Action, remote *record.Record) (*record.Record, error) {
	if action == ActionMerge && remote == nil {
		return nil, ErrRemoteRequired
	}

	resolved, err := m.store.Update(kind, id, func(cur *record.Record, exists bool) (*record.Record, error) {
		if !exists {
			return nil, ErrNotFound
		}
		if !cur.InConflict() {
			return nil, ErrNotInConflict
		}

		switch action {
		case ActionKeepLocal:
			keepLocal(cur)
		case ActionAcceptRemote, ActionMerge:
			source := remote
			if source == nil && cur.Conflict != nil {
				source = cur.Conflict.Remote
			}
			if source == nil {
				return nil, ErrRemoteRequired
			}
			applyRemote(cur, source)
		default:
			return nil, fmt.Errorf("%w %q", ErrUnknownAction, action)
		}
		cur.Conflict = nil
		cur.Touch(m.localID, m.now())
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	Logger.Infof("%s %s resolved with %s (version %d)", kind, id, action, resolved.Version)
	return resolved, nil
}

// keepLocal restores the status the record had before the conflict.
func keepLocal(cur *record.Record) {
	prior := record.StatusActive
	if cur.Conflict != nil && cur.Conflict.PriorStatus != "" && cur.Conflict.PriorStatus != record.StatusConflict {
		prior = cur.Conflict.PriorStatus
	}
	cur.Status = prior
}

// applyRemote copies payload and status fields of source into cur.
func applyRemote(cur, source *record.Record) {
	if source.Payload != nil {
		cur.Payload = source.Clone().Payload
	}

	status := source.Status
	if status == "" || status == record.StatusConflict {
		status = record.StatusActive
	}
	cur.Status = status

	if status == record.StatusRemoved {
		cur.RemovedAt = source.RemovedAt
		cur.RemovedBy = source.RemovedBy
		if cur.RemovedAt.IsZero() {
			cur.RemovedAt = record.Now()
		}
	} else {
		cur.RemovedAt = record.Timestamp{}
		cur.RemovedBy = ""
	}
}
