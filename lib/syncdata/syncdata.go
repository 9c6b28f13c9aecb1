// Package syncdata exports the local replica as a snapshot for peers.
package syncdata

import (
	"fmt"

	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/store"
)

// Snapshot is the full dataset of one instance.
type Snapshot struct {
	Origin       string           `json:"pc_id"`
	Patients     []*record.Record `json:"pacientes"`
	Appointments []*record.Record `json:"agendamentos"`
}

// Size returns the number of records in the snapshot.
func (s *Snapshot) Size() int {
	return len(s.Patients) + len(s.Appointments)
}

// Exporter reads snapshots from a store.
type Exporter struct {
	store   store.IStore
	localID string
}

func NewExporter(s store.IStore, localID string) *Exporter {
	return &Exporter{store: s, localID: localID}
}

// Export returns the records of both collections tagged with the local
// pc_id. Tombstones are only included if includeRemoved is set; a peer that
// should learn deletions must ask for them.
func (e *Exporter) Export(includeRemoved bool) (*Snapshot, error) {
	patients, err := e.store.Scan(record.KindPatient, includeRemoved)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", record.KindPatient.Collection(), err)
	}
	appointments, err := e.store.Scan(record.KindAppointment, includeRemoved)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", record.KindAppointment.Collection(), err)
	}
	return &Snapshot{
		Origin:       e.localID,
		Patients:     patients,
		Appointments: appointments,
	}, nil
}
