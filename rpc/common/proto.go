package common

import (
	"encoding/json"

	"github.com/gpaciente/psync/lib/conflict"
	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/election"
	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/syncer"
)

// --------------------------------------------------------------------------
// Discovery and election
// --------------------------------------------------------------------------

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Ok       bool   `json:"ok"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Status   string `json:"status"`
	Hostname string `json:"hostname,omitempty"`
	PCID     string `json:"pc_id,omitempty"`
}

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// RegisterResponse is the answer to POST /register.
type RegisterResponse struct {
	Ok         bool   `json:"ok"`
	Registered bool   `json:"registered"`
	Message    string `json:"message,omitempty"`
}

// DiscoverResponse is the body of GET /api/sync/discover. Servers never
// contains the answering instance.
type DiscoverResponse struct {
	Success     bool             `json:"success"`
	LocalIP     string           `json:"local_ip"`
	Port        int              `json:"port"`
	Mode        string           `json:"mode"`
	Servers     []discovery.Peer `json:"servers"`
	HostWarning string           `json:"host_warning,omitempty"`
}

// --------------------------------------------------------------------------
// Data exchange
// --------------------------------------------------------------------------

// SyncDataResponse is the body of GET /api/sync/data.
type SyncDataResponse struct {
	Success      bool             `json:"success"`
	PCID         string           `json:"pc_id"`
	Patients     []*record.Record `json:"pacientes"`
	Appointments []*record.Record `json:"agendamentos"`
}

// MergeRequest is the body of POST /api/sync/merge. The collections are
// pointers so a missing key can be told apart from an empty list.
type MergeRequest struct {
	PCID         string            `json:"pc_id"`
	Patients     *[]*record.Record `json:"pacientes"`
	Appointments *[]*record.Record `json:"agendamentos"`
}

// NewMergeRequest builds a request with both collections set.
func NewMergeRequest(pcID string, patients, appointments []*record.Record) *MergeRequest {
	if patients == nil {
		patients = []*record.Record{}
	}
	if appointments == nil {
		appointments = []*record.Record{}
	}
	return &MergeRequest{PCID: pcID, Patients: &patients, Appointments: &appointments}
}

// MergeResponse is the answer to POST /api/sync/merge.
type MergeResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Stats   map[string]int `json:"stats,omitempty"`
}

// PullRequest is the body of POST /api/sync/pull. With Bidirectional set the
// local snapshot is pushed back after the pull.
type PullRequest struct {
	IP            string `json:"ip"`
	Port          int    `json:"port"`
	Bidirectional bool   `json:"bidirecional,omitempty"`
}

// PullResponse is the answer to POST /api/sync/pull.
type PullResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Stats   map[string]int `json:"stats,omitempty"`
	Pushed  map[string]int `json:"enviados,omitempty"`
}

// --------------------------------------------------------------------------
// Conflicts
// --------------------------------------------------------------------------

// ConflictsResponse is the body of GET /api/sync/conflitos.
type ConflictsResponse = conflict.List

// ResolveRequest is the body of POST /api/sync/conflitos/resolver.
// RemoteData is either a record or a bare payload object.
type ResolveRequest struct {
	RecordID   string          `json:"registro_id"`
	Kind       string          `json:"tipo"`
	Action     string          `json:"acao"`
	RemoteData json.RawMessage `json:"dados_remotos,omitempty"`
}

// --------------------------------------------------------------------------
// Generic and status
// --------------------------------------------------------------------------

// BasicResponse is used by endpoints that only report success.
type BasicResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse is the body of GET /api/sync/status.
type StatusResponse struct {
	Success   bool                   `json:"success"`
	PCID      string                 `json:"pc_id"`
	Self      discovery.Peer         `json:"self"`
	Mode      string                 `json:"mode"`
	Election  *election.Status       `json:"election,omitempty"`
	Scan      *discovery.ScanMetrics `json:"scan,omitempty"`
	Peers     []discovery.Peer       `json:"peers"`
	Sync      []syncer.PeerState     `json:"sync"`
	Records   map[string]int         `json:"registros"`
	Conflicts int                    `json:"conflitos"`
}
