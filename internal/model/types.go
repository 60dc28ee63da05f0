package model

import (
	"encoding/json"
	"time"
)

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// NetworkRecord stores one network document, open or closed, as produced by
// the network JSON codec.
type NetworkRecord struct {
	VersionedRecord
	ID        string          `json:"id"`
	Nodes     int             `json:"nodes"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Network   json.RawMessage `json:"network"`
}

type SearchParams struct {
	TargetScore   float64 `json:"target_score"`
	MinFlips      int     `json:"min_flips"`
	MaxFlips      int     `json:"max_flips"`
	MaxIters      int     `json:"max_iters"`
	MaxStalls     int     `json:"max_stalls"`
	MaxStagnation int     `json:"max_stagnation"`
}

// SearchOutcome is the final search context of a run.
type SearchOutcome struct {
	Iteration   int     `json:"iteration"`
	Score       float64 `json:"score"`
	NFlips      int     `json:"n_flips"`
	NStalls     int     `json:"n_stalls"`
	Stagnation  int     `json:"stagnation"`
	Evaluations int     `json:"evaluations"`
	Accepted    int     `json:"accepted"`
	Terminated  bool    `json:"terminated"`
	Reason      string  `json:"reason"`
	Reached     bool    `json:"reached"`
}

type RunRecord struct {
	VersionedRecord
	ID               string        `json:"id"`
	InitialNetworkID string        `json:"initial_network_id"`
	BestNetworkID    string        `json:"best_network_id"`
	Objective        string        `json:"objective"`
	Seed             int64         `json:"seed"`
	Params           SearchParams  `json:"params"`
	Outcome          SearchOutcome `json:"outcome"`
	Error            string        `json:"error,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
}

// IterationRecord is one row of a run's score history.
type IterationRecord struct {
	Iteration int     `json:"iteration"`
	Candidate float64 `json:"candidate"`
	Score     float64 `json:"score"`
	Accepted  bool    `json:"accepted"`
	Flips     int     `json:"flips"`
}
