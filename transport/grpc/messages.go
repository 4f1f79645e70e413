package grpctransport

import (
	"time"

	"github.com/hupe1980/dkmeans/instrument"
)

const serviceName = "dkmeans.v1.Collective"

// Full method names, as seen by interceptors.
const (
	MethodJoin      = "/" + serviceName + "/Join"
	MethodFetch     = "/" + serviceName + "/FetchShard"
	MethodReduce    = "/" + serviceName + "/Reduce"
	MethodBroadcast = "/" + serviceName + "/Broadcast"
	MethodPushTrace = "/" + serviceName + "/PushTrace"
	MethodLeave     = "/" + serviceName + "/Leave"
)

type joinRequest struct{}

type joinResponse struct {
	Rank        int    `json:"rank"`
	Token       string `json:"token"`
	Size        int    `json:"size"`
	Compression string `json:"compression"`
	Settings    []byte `json:"settings,omitempty"`
}

type fetchShardRequest struct {
	Rank  int    `json:"rank"`
	Token string `json:"token"`
}

type fetchShardResponse struct {
	// Points is a point frame; empty for an empty shard.
	Points []byte `json:"points,omitempty"`
}

type reduceRequest struct {
	Rank   int      `json:"rank"`
	Token  string   `json:"token"`
	Seq    uint64   `json:"seq"`
	Sums   []byte   `json:"sums"`
	Counts []uint64 `json:"counts"`
}

type reduceResponse struct {
	Sums   []byte   `json:"sums"`
	Counts []uint64 `json:"counts"`
}

type broadcastRequest struct {
	Rank  int    `json:"rank"`
	Token string `json:"token"`
	Seq   uint64 `json:"seq"`
}

type broadcastResponse struct {
	Centroids []byte `json:"centroids"`
}

type pushTraceRequest struct {
	Rank   int                `json:"rank"`
	Token  string             `json:"token"`
	Events []instrument.Event `json:"events"`
}

type pushTraceResponse struct{}

type leaveRequest struct {
	Rank  int    `json:"rank"`
	Token string `json:"token"`
}

type leaveResponse struct{}

// leaveTimeout bounds the Leave call made by Client.Close.
const leaveTimeout = 5 * time.Second
