package client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gpaciente/psync/lib/discovery"
	"github.com/gpaciente/psync/lib/record"
	"github.com/gpaciente/psync/lib/syncdata"
	"github.com/gpaciente/psync/rpc/common"
	"github.com/gpaciente/psync/rpc/serializer"
)

// --------------------------------------------------------------------------
// Discovery and election
// --------------------------------------------------------------------------

// Health calls GET /health
func (c *PeerClient) Health(ctx context.Context, peer discovery.Peer) (*common.HealthResponse, error) {
	var resp common.HealthResponse
	if err := c.invoke(ctx, peer, http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Probe checks whether ip:port runs an instance. It implements
// discovery.ProbeFunc. The peer carries the address the responder reports
// about itself; the probed ip and port only fill in what it leaves out.
func (c *PeerClient) Probe(ctx context.Context, ip string, port int) (discovery.Peer, error) {
	health, err := c.Health(ctx, discovery.Peer{IP: ip, Port: port})
	if err != nil {
		return discovery.Peer{}, err
	}
	if !health.Ok && health.Status != "ok" {
		return discovery.Peer{}, fmt.Errorf("%s is not healthy (status %q)", net.JoinHostPort(ip, strconv.Itoa(port)), health.Status)
	}

	peer := discovery.Peer{IP: health.IP, Port: health.Port, Hostname: health.Hostname}
	if peer.IP == "" {
		peer.IP = ip
	}
	if peer.Port <= 0 {
		peer.Port = port
	}
	return peer, nil
}

// Register announces self to leader. It implements election.RegisterFunc.
func (c *PeerClient) Register(ctx context.Context, leader, self discovery.Peer) error {
	var resp common.RegisterResponse
	req := common.RegisterRequest{IP: self.IP, Port: self.Port}
	if err := c.invoke(ctx, leader, http.MethodPost, "/register", nil, req, &resp); err != nil {
		return err
	}
	if !resp.Ok {
		return fmt.Errorf("register with %s rejected: %s", leader.Addr(), resp.Message)
	}
	if !resp.Registered {
		Logger.Debugf("%s did not register us: %s", leader.Addr(), resp.Message)
	}
	return nil
}

// Discover calls GET /api/sync/discover
func (c *PeerClient) Discover(ctx context.Context, peer discovery.Peer) (*common.DiscoverResponse, error) {
	var resp common.DiscoverResponse
	if err := c.invoke(ctx, peer, http.MethodGet, "/api/sync/discover", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status calls GET /api/sync/status
func (c *PeerClient) Status(ctx context.Context, peer discovery.Peer) (*common.StatusResponse, error) {
	var resp common.StatusResponse
	if err := c.invoke(ctx, peer, http.MethodGet, "/api/sync/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --------------------------------------------------------------------------
// Data exchange (implements syncer.Client)
// --------------------------------------------------------------------------

// FetchData downloads the snapshot of peer
func (c *PeerClient) FetchData(ctx context.Context, peer discovery.Peer, includeRemoved bool) (*syncdata.Snapshot, error) {
	query := url.Values{"incluir_removidos": {strconv.FormatBool(includeRemoved)}}

	var resp common.SyncDataResponse
	if err := c.invoke(ctx, peer, http.MethodGet, "/api/sync/data", query, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s could not export its data", peerName(peer))
	}

	return &syncdata.Snapshot{
		Origin:       resp.PCID,
		Patients:     nonNil(resp.Patients),
		Appointments: nonNil(resp.Appointments),
	}, nil
}

// Merge sends snap to POST /api/sync/merge of peer and returns its stats
func (c *PeerClient) Merge(ctx context.Context, peer discovery.Peer, snap *syncdata.Snapshot) (map[string]int, error) {
	req := common.NewMergeRequest(snap.Origin, snap.Patients, snap.Appointments)

	var resp common.MergeResponse
	if err := c.invoke(ctx, peer, http.MethodPost, "/api/sync/merge", nil, req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp.Stats, fmt.Errorf("merge on %s failed: %s", peerName(peer), resp.Message)
	}
	return resp.Stats, nil
}

// Pull asks peer to pull from (ip, port), optionally in both directions
func (c *PeerClient) Pull(ctx context.Context, peer discovery.Peer, req common.PullRequest) (*common.PullResponse, error) {
	var resp common.PullResponse
	if err := c.invoke(ctx, peer, http.MethodPost, "/api/sync/pull", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --------------------------------------------------------------------------
// Conflicts
// --------------------------------------------------------------------------

// Conflicts calls GET /api/sync/conflitos
func (c *PeerClient) Conflicts(ctx context.Context, peer discovery.Peer) (*common.ConflictsResponse, error) {
	var resp common.ConflictsResponse
	if err := c.invoke(ctx, peer, http.MethodGet, "/api/sync/conflitos", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Resolve calls POST /api/sync/conflitos/resolver. The request is always
// sent as json since dados_remotos is raw json.
func (c *PeerClient) Resolve(ctx context.Context, peer discovery.Peer, req common.ResolveRequest) (*common.BasicResponse, error) {
	var resp common.BasicResponse
	if err := c.invokeWith(ctx, serializer.NewJSONSerializer(), peer, http.MethodPost, "/api/sync/conflitos/resolver", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func nonNil(records []*record.Record) []*record.Record {
	if records == nil {
		return []*record.Record{}
	}
	return records
}
