package client

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/syncdata"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/serializer"
	httpTransport "github.com/gpaciente/psync/rpc/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPeer starts a server with handler and returns it as a peer
func newTestPeer(t *testing.T, handler http.Handler) discovery.Peer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return discovery.Peer{IP: host, Port: port}
}

func newTestClient(t *testing.T, s serializer.IRPCSerializer) *PeerClient {
	t.Helper()
	c, err := NewPeerClient(common.ClientConfig{TimeoutSecond: 2}, httpTransport.NewHttpClientTransport(), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestProbe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, common.HealthResponse{Ok: true, IP: "10.0.0.2", Port: 5000, Status: "ok", Hostname: "recepcao"})
	})
	peer := newTestPeer(t, mux)
	c := newTestClient(t, serializer.NewJSONSerializer())

	got, err := c.Probe(context.Background(), peer.IP, peer.Port)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.IP, "the reported address wins over the probed one")
	assert.Equal(t, 5000, got.Port)
	assert.Equal(t, "recepcao", got.Hostname)
}

func TestProbeFillsMissingAddress(t *testing.T) {
	// older instances only answer with a status
	peer := newTestPeer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	c := newTestClient(t, serializer.NewJSONSerializer())

	got, err := c.Probe(context.Background(), peer.IP, peer.Port)
	require.NoError(t, err)
	assert.Equal(t, peer.IP, got.IP)
	assert.Equal(t, peer.Port, got.Port)
}

func TestProbeRejectsUnhealthy(t *testing.T) {
	peer := newTestPeer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, common.HealthResponse{Ok: false, Status: "starting"})
	}))
	c := newTestClient(t, serializer.NewJSONSerializer())

	_, err := c.Probe(context.Background(), peer.IP, peer.Port)
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	var got common.RegisterRequest
	leader := newTestPeer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/register", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, common.RegisterResponse{Ok: true, Registered: true})
	}))
	c := newTestClient(t, serializer.NewJSONSerializer())

	err := c.Register(context.Background(), leader, discovery.Peer{IP: "192.168.0.20", Port: 5000})
	require.NoError(t, err)
	assert.Equal(t, common.RegisterRequest{IP: "192.168.0.20", Port: 5000}, got)
}

func TestFetchDataAndMergeWithMsgpack(t *testing.T) {
	rec := record.New("p1", map[string]any{"nome": "Ana"}, "pc-b")
	msgpack := serializer.NewMsgpackSerializer()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sync/data", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("incluir_removidos"))
		assert.Equal(t, serializer.ContentTypeMsgpack, r.Header.Get("Accept"))
		body, err := msgpack.Serialize(common.SyncDataResponse{Success: true, PCID: "pc-b", Patients: []*record.Record{rec}})
		assert.NoError(t, err)
		w.Header().Set("Content-Type", serializer.ContentTypeMsgpack)
		_, _ = w.Write(body)
	})
	mux.HandleFunc("POST /api/sync/merge", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, serializer.ContentTypeMsgpack, r.Header.Get("Content-Type"))
		// answer in json, the client follows the content type
		writeJSON(w, http.StatusOK, common.MergeResponse{Success: true, Message: "ok", Stats: map[string]int{"added": 1}})
	})
	peer := newTestPeer(t, mux)
	c := newTestClient(t, msgpack)

	snap, err := c.FetchData(context.Background(), peer, true)
	require.NoError(t, err)
	assert.Equal(t, "pc-b", snap.Origin)
	require.Len(t, snap.Patients, 1)
	assert.True(t, record.SameContent(rec, snap.Patients[0]))
	assert.NotNil(t, snap.Appointments)

	stats, err := c.Merge(context.Background(), peer, &syncdata.Snapshot{Origin: "pc-a", Patients: snap.Patients})
	require.NoError(t, err)
	assert.Equal(t, 1, stats["added"])
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	peer := newTestPeer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, common.BasicResponse{Success: false, Message: "tipo invalido"})
	}))
	c := newTestClient(t, serializer.NewJSONSerializer())

	_, err := c.Resolve(context.Background(), peer, common.ResolveRequest{RecordID: "x", Kind: "consulta", Action: "manter_local"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "tipo invalido", apiErr.Message)
}

func TestPeerFromEndpoint(t *testing.T) {
	tests := []struct {
		input   string
		want    discovery.Peer
		wantErr bool
	}{
		{input: "192.168.0.5:5001", want: discovery.Peer{IP: "192.168.0.5", Port: 5001}},
		{input: "192.168.0.5", want: discovery.Peer{IP: "192.168.0.5", Port: common.DefaultPort}},
		{input: "http://recepcao:8080/", want: discovery.Peer{IP: "recepcao", Port: 8080}},
		{input: "host:abc", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := PeerFromEndpoint(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}
