package transport

import (
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/tsdb/confignode/internal/model"
)

// MockReportSubmitter is a mock implementation of ReportSubmitter
type MockReportSubmitter struct {
	mock.Mock
}

func (m *MockReportSubmitter) SubmitReport(report *model.HeartbeatReport) error {
	args := m.Called(report)
	return args.Error(0)
}

func TestGossipReceiver_NotifyMsgSubmitsReport(t *testing.T) {
	submitter := new(MockReportSubmitter)
	submitter.On("SubmitReport", mock.MatchedBy(func(r *model.HeartbeatReport) bool {
		return r.DataNodeID == 3 && len(r.Regions) == 1 && r.Regions[0].Status == model.ReplicaStatusReadOnly
	})).Return(nil)

	r := NewGossipReceiver(submitter, "confignode-1", zap.NewNop())

	data, err := EncodeHeartbeat(&model.HeartbeatReport{
		DataNodeID: 3,
		Timestamp:  42,
		Regions: []model.RegionHeartbeat{{
			GroupID: model.ConsensusGroupID{Type: model.DataRegion, ID: 1},
			Status:  model.ReplicaStatusReadOnly,
		}},
	})
	require.NoError(t, err)

	r.NotifyMsg(data)

	submitter.AssertExpectations(t)
	assert.Equal(t, uint64(1), r.Received())
	assert.Equal(t, uint64(0), r.Dropped())
}

func TestGossipReceiver_NotifyMsgDropsBadMessages(t *testing.T) {
	submitter := new(MockReportSubmitter)
	submitter.On("SubmitReport", mock.Anything).Return(errors.New("queue full"))

	r := NewGossipReceiver(submitter, "confignode-1", zap.NewNop())

	r.NotifyMsg([]byte("not json"))
	r.NotifyMsg([]byte(`{"type":"membership"}`))
	r.NotifyMsg([]byte(`{"type":"heartbeat"}`))
	data, _ := EncodeHeartbeat(&model.HeartbeatReport{DataNodeID: 1})
	r.NotifyMsg(data)

	assert.Equal(t, uint64(4), r.Dropped())
	assert.Equal(t, uint64(0), r.Received())
	submitter.AssertNumberOfCalls(t, "SubmitReport", 1)
}

func TestGossipReceiver_NodeMeta(t *testing.T) {
	r := NewGossipReceiver(new(MockReportSubmitter), "confignode-1", zap.NewNop())

	var meta nodeMeta
	require.NoError(t, json.Unmarshal(r.NodeMeta(memberlist.MetaMaxSize), &meta))
	assert.Equal(t, nodeMeta{Role: "confignode", NodeID: "confignode-1"}, meta)

	assert.Nil(t, r.NodeMeta(4))
}

func TestGossipReceiver_WithoutMemberlist(t *testing.T) {
	r := NewGossipReceiver(new(MockReportSubmitter), "confignode-1", zap.NewNop())

	assert.Nil(t, r.Members())
	assert.NoError(t, r.Shutdown(0))

	// event callbacks only log
	node := &memberlist.Node{Name: "datanode-1", Addr: net.ParseIP("10.0.0.1"), Port: 7946}
	r.NotifyJoin(node)
	r.NotifyUpdate(node)
	r.NotifyLeave(node)
}
