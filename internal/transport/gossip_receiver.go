// Package transport receives heartbeat reports pushed by data nodes over the
// memberlist gossip layer.
package transport

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// MessageTypeHeartbeat tags user messages carrying a heartbeat report
const MessageTypeHeartbeat = "heartbeat"

// ReportSubmitter accepts heartbeat reports for ingestion
type ReportSubmitter interface {
	SubmitReport(report *model.HeartbeatReport) error
}

// GossipConfig holds gossip protocol configuration
type GossipConfig struct {
	NodeName       string
	BindAddr       string
	BindPort       int
	AdvertiseAddr  string
	AdvertisePort  int
	SeedNodes      []string
	GossipInterval time.Duration
}

// gossipMessage is the envelope of every user message
type gossipMessage struct {
	Type   string                 `json:"type"`
	Report *model.HeartbeatReport `json:"report,omitempty"`
}

// nodeMeta is advertised to every cluster member
type nodeMeta struct {
	Role   string `json:"role"`
	NodeID string `json:"node_id"`
}

// GossipReceiver implements memberlist.Delegate and memberlist.EventDelegate
// and forwards heartbeat reports to a ReportSubmitter
type GossipReceiver struct {
	submitter  ReportSubmitter
	nodeID     string
	logger     *zap.Logger
	memberlist *memberlist.Memberlist

	received atomic.Uint64
	dropped  atomic.Uint64
}

// NewGossipReceiver creates a receiver; call Start to join the cluster
func NewGossipReceiver(submitter ReportSubmitter, nodeID string, logger *zap.Logger) *GossipReceiver {
	return &GossipReceiver{
		submitter: submitter,
		nodeID:    nodeID,
		logger:    logger,
	}
}

// EncodeHeartbeat wraps a report into a gossip user message
func EncodeHeartbeat(report *model.HeartbeatReport) ([]byte, error) {
	return json.Marshal(gossipMessage{Type: MessageTypeHeartbeat, Report: report})
}

// Start creates the memberlist and joins the seed nodes
func (r *GossipReceiver) Start(cfg GossipConfig) error {
	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = cfg.NodeName
	if mlConfig.Name == "" {
		mlConfig.Name = r.nodeID
	}
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	if cfg.AdvertiseAddr != "" {
		mlConfig.AdvertiseAddr = cfg.AdvertiseAddr
		mlConfig.AdvertisePort = cfg.AdvertisePort
	}
	if cfg.GossipInterval > 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	mlConfig.Delegate = r
	mlConfig.Events = r

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return fmt.Errorf("failed to create memberlist: %w", err)
	}
	r.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		joined, err := ml.Join(cfg.SeedNodes)
		if err != nil {
			r.logger.Warn("Failed to join some seed nodes",
				zap.Strings("seed_nodes", cfg.SeedNodes),
				zap.Error(err))
		}
		r.logger.Info("Joined gossip cluster", zap.Int("contacted", joined))
	}

	return nil
}

// NodeMeta implements memberlist.Delegate
func (r *GossipReceiver) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(nodeMeta{Role: "confignode", NodeID: r.nodeID})
	if len(data) > limit {
		return nil
	}
	return data
}

// NotifyMsg implements memberlist.Delegate
func (r *GossipReceiver) NotifyMsg(data []byte) {
	var msg gossipMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("Failed to unmarshal gossip message", zap.Error(err))
		return
	}

	if msg.Type != MessageTypeHeartbeat || msg.Report == nil {
		r.dropped.Add(1)
		r.logger.Debug("Ignoring gossip message", zap.String("type", msg.Type))
		return
	}

	if err := r.submitter.SubmitReport(msg.Report); err != nil {
		r.dropped.Add(1)
		r.logger.Warn("Failed to submit gossiped heartbeat",
			zap.Int32("data_node_id", msg.Report.DataNodeID),
			zap.Error(err))
		return
	}
	r.received.Add(1)
}

// GetBroadcasts implements memberlist.Delegate
func (r *GossipReceiver) GetBroadcasts(overhead, limit int) [][]byte {
	return nil
}

// LocalState implements memberlist.Delegate
func (r *GossipReceiver) LocalState(join bool) []byte {
	return nil
}

// MergeRemoteState implements memberlist.Delegate
func (r *GossipReceiver) MergeRemoteState(buf []byte, join bool) {}

// NotifyJoin implements memberlist.EventDelegate
func (r *GossipReceiver) NotifyJoin(node *memberlist.Node) {
	r.logger.Info("Node joined",
		zap.String("node", node.Name),
		zap.String("addr", node.Address()))
}

// NotifyLeave implements memberlist.EventDelegate. Replicas on the node age
// out through the staleness horizon.
func (r *GossipReceiver) NotifyLeave(node *memberlist.Node) {
	r.logger.Info("Node left", zap.String("node", node.Name))
}

// NotifyUpdate implements memberlist.EventDelegate
func (r *GossipReceiver) NotifyUpdate(node *memberlist.Node) {
	r.logger.Debug("Node updated", zap.String("node", node.Name))
}

// Members returns the names of the live cluster members
func (r *GossipReceiver) Members() []string {
	if r.memberlist == nil {
		return nil
	}
	members := r.memberlist.Members()
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return names
}

// Received returns the number of reports handed to the submitter
func (r *GossipReceiver) Received() uint64 {
	return r.received.Load()
}

// Dropped returns the number of messages that were not submitted
func (r *GossipReceiver) Dropped() uint64 {
	return r.dropped.Load()
}

// Shutdown leaves the cluster and stops the memberlist
func (r *GossipReceiver) Shutdown(timeout time.Duration) error {
	if r.memberlist == nil {
		return nil
	}
	if err := r.memberlist.Leave(timeout); err != nil {
		r.logger.Warn("Failed to leave gossip cluster", zap.Error(err))
	}
	return r.memberlist.Shutdown()
}

var (
	_ memberlist.Delegate      = (*GossipReceiver)(nil)
	_ memberlist.EventDelegate = (*GossipReceiver)(nil)
)
