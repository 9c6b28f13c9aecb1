package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gpaciente/psync/lib/conflict"
	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/serializer"
)

// maxBodyBytes limits request bodies (a merge carries a full replica)
const maxBodyBytes = 64 << 20

// hostWarning is sent by /api/sync/discover when the listener is loopback only
const hostWarning = "this instance listens on a loopback address only; other PCs can not find or reach it. " +
	"Listen on 0.0.0.0 (--endpoint 0.0.0.0:PORT) and allow the port in the firewall"

// handler builds the routing table of the sync API
func (s *rpcServer) handler() http.Handler {
	mux := http.NewServeMux()

	// Discovery and election
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("GET /api/sync/discover", s.handleDiscover)

	// Data exchange
	mux.HandleFunc("GET /api/sync/data", s.handleData)
	mux.HandleFunc("POST /api/sync/merge", s.handleMerge)
	mux.HandleFunc("POST /api/sync/pull", s.handlePull)

	// Conflicts
	mux.HandleFunc("GET /api/sync/conflitos", s.handleConflicts)
	mux.HandleFunc("POST /api/sync/conflitos/resolver", s.handleResolve)

	// Introspection
	mux.HandleFunc("GET /api/sync/status", s.handleStatus)
	mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	return mux
}

// --------------------------------------------------------------------------
// Discovery and election
// --------------------------------------------------------------------------

func (s *rpcServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, http.StatusOK, common.HealthResponse{
		Ok:       true,
		IP:       s.self.IP,
		Port:     s.self.Port,
		Status:   "ok",
		Hostname: s.self.Hostname,
		PCID:     s.pcID,
	})
}

func (s *rpcServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req common.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		writeResponse(w, r, http.StatusBadRequest, common.RegisterResponse{Ok: false, Message: "invalid payload: {ip, port}"})
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	if req.IP == "" {
		writeResponse(w, r, http.StatusBadRequest, common.RegisterResponse{Ok: false, Message: "ip is required"})
		return
	}
	if req.Port == 0 {
		req.Port = common.DefaultPort
	}

	if s.elector == nil {
		writeResponse(w, r, http.StatusOK, common.RegisterResponse{
			Ok:      true,
			Message: fmt.Sprintf("no leader in %s discovery", s.mode),
		})
		return
	}

	registered, msg := s.elector.HandleRegister(req.IP, req.Port)
	writeResponse(w, r, http.StatusOK, common.RegisterResponse{Ok: true, Registered: registered, Message: msg})
}

func (s *rpcServer) handleDiscover(w http.ResponseWriter, r *http.Request) {
	servers := make([]discovery.Peer, 0)
	for _, p := range s.discoverer.Peers() {
		if p.Addr() == s.self.Addr() {
			continue
		}
		servers = append(servers, p)
	}

	resp := common.DiscoverResponse{
		Success: true,
		LocalIP: s.self.IP,
		Port:    s.self.Port,
		Mode:    string(s.mode),
		Servers: servers,
	}
	if discovery.IsLoopbackHost(s.config.ListenHost()) {
		resp.HostWarning = hostWarning
	}
	writeResponse(w, r, http.StatusOK, resp)
}

// --------------------------------------------------------------------------
// Data exchange
// --------------------------------------------------------------------------

func (s *rpcServer) handleData(w http.ResponseWriter, r *http.Request) {
	includeRemoved := queryBool(r, "incluir_removidos")

	snap, err := s.exporter.Export(includeRemoved)
	if err != nil {
		Logger.Errorf("export failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeResponse(w, r, http.StatusOK, common.SyncDataResponse{
		Success:      true,
		PCID:         snap.Origin,
		Patients:     snap.Patients,
		Appointments: snap.Appointments,
	})
}

func (s *rpcServer) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req common.MergeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Patients == nil || req.Appointments == nil {
		writeError(w, r, http.StatusBadRequest, "pacientes and agendamentos are required")
		return
	}

	// Reject structurally broken batches before touching any record
	for _, batch := range []struct {
		kind    record.Kind
		records []*record.Record
	}{
		{record.KindPatient, *req.Patients},
		{record.KindAppointment, *req.Appointments},
	} {
		for i, rec := range batch.records {
			if err := rec.Validate(); err != nil {
				writeError(w, r, http.StatusBadRequest, fmt.Sprintf("%s[%d]: %v", batch.kind.Collection(), i, err))
				return
			}
		}
	}

	res := s.reconciler.Merge(req.PCID, *req.Patients, *req.Appointments)
	total := res.Total()
	Logger.Infof("merge from %s: %d added, %d updated, %d conflicts, %d errors",
		req.PCID, total.Added, total.Updated, total.Conflicts, total.Errors)

	writeResponse(w, r, http.StatusOK, common.MergeResponse{
		Success: true,
		Message: fmt.Sprintf("merge completed: %d added, %d updated, %d conflicts", total.Added, total.Updated, total.Conflicts),
		Stats:   res.StatsMap(),
	})
}

func (s *rpcServer) handlePull(w http.ResponseWriter, r *http.Request) {
	var req common.PullRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	req.IP = strings.TrimSpace(req.IP)
	if req.IP == "" {
		writeError(w, r, http.StatusBadRequest, "ip is required")
		return
	}
	if req.Port == 0 {
		req.Port = common.DefaultPort
	}
	peer := discovery.Peer{IP: req.IP, Port: req.Port}
	if peer.Addr() == s.self.Addr() {
		writeError(w, r, http.StatusBadRequest, "can not sync with self")
		return
	}

	if req.Bidirectional {
		res, err := s.syncer.Exchange(r.Context(), peer)
		if err != nil {
			resp := common.PullResponse{Success: false, Message: err.Error()}
			if res != nil {
				resp.Stats = res.Pulled
			}
			writeResponse(w, r, http.StatusBadGateway, resp)
			return
		}
		writeResponse(w, r, http.StatusOK, common.PullResponse{
			Success: true,
			Message: fmt.Sprintf("exchanged data with %s", peer.Addr()),
			Stats:   res.Pulled,
			Pushed:  res.Pushed,
		})
		return
	}

	res, err := s.syncer.Pull(r.Context(), peer)
	if err != nil {
		writeResponse(w, r, http.StatusBadGateway, common.PullResponse{Success: false, Message: err.Error()})
		return
	}
	writeResponse(w, r, http.StatusOK, common.PullResponse{
		Success: true,
		Message: fmt.Sprintf("pulled data from %s", peer.Addr()),
		Stats:   res.StatsMap(),
	})
}

// --------------------------------------------------------------------------
// Conflicts
// --------------------------------------------------------------------------

func (s *rpcServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	list, err := s.conflicts.List()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeResponse(w, r, http.StatusOK, list)
}

func (s *rpcServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	// dados_remotos is raw json, so this body is always json
	var req common.ResolveRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.RecordID) == "" {
		writeError(w, r, http.StatusBadRequest, "registro_id is required")
		return
	}
	kind, err := record.ParseKind(req.Kind)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	action, err := conflict.ParseAction(req.Action)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	remote, err := conflict.ParseRemote(req.RemoteData)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resolved, err := s.conflicts.Resolve(kind, req.RecordID, action, remote)
	switch {
	case errors.Is(err, conflict.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, conflict.ErrNotInConflict), errors.Is(err, conflict.ErrRemoteRequired), errors.Is(err, conflict.ErrUnknownAction):
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	writeResponse(w, r, http.StatusOK, common.BasicResponse{
		Success: true,
		Message: fmt.Sprintf("%s %s resolved (%s), version %d", kind, resolved.ID, action, resolved.Version),
	})
}

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

func (s *rpcServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := common.StatusResponse{
		Success: true,
		PCID:    s.pcID,
		Self:    s.self,
		Mode:    string(s.mode),
		Peers:   s.discoverer.Peers(),
		Sync:    s.syncer.States(),
		Records: make(map[string]int),
	}
	if s.elector != nil {
		status := s.elector.Status()
		resp.Election = &status
	}
	if s.scanner != nil {
		scan := s.scanner.Metrics()
		resp.Scan = &scan
	}

	for _, kind := range record.Kinds {
		n, err := s.store.Count(kind)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Records[kind.Collection()] = n
	}
	list, err := s.conflicts.List()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Conflicts = len(list.Patients) + len(list.Appointments)

	writeResponse(w, r, http.StatusOK, resp)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// decodeBody reads the request body with the serializer named by its
// Content-Type (json if absent)
func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return err
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	if len(body) == 0 {
		return fmt.Errorf("empty body")
	}
	return serializer.ForContentType(r.Header.Get("Content-Type")).Deserialize(body, v)
}

// writeResponse encodes v with the serializer asked for by the Accept header
func writeResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	s := serializer.ForContentType(r.Header.Get("Accept"))
	body, err := s.Serialize(v)
	if err != nil {
		Logger.Errorf("failed to serialize response for %s: %v", r.URL.Path, err)
		http.Error(w, "failed to serialize response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", s.ContentType())
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		Logger.Debugf("failed to write response for %s: %v", r.URL.Path, err)
	}
}

// writeError sends {success: false, message}
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeResponse(w, r, status, common.BasicResponse{Success: false, Message: msg})
}

// queryBool reads a boolean query parameter; unknown values are false
func queryBool(r *http.Request, key string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	if v == "sim" || v == "yes" {
		return true
	}
	b, _ := strconv.ParseBool(v)
	return b
}
