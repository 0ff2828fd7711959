package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"gorealisbridge/journal"
	"gorealisbridge/types"
)

// API holds what the handlers read. Balance funcs dial the node on every
// call and never touch the pipeline clients.
type API struct {
	Journal       *journal.Journal
	Pipelines     func() interface{}
	Running       func() int
	RealisBalance func(ctx context.Context) (string, error)
	BSCBalance    func(ctx context.Context) (string, error)
	// InProgress records older than this are reported as stuck
	StuckAfter time.Duration
	Logger     zerolog.Logger
}

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type APIStateResponse struct {
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Pipelines interface{} `json:"pipelines,omitempty"`
}

type APICheckpointResponse struct {
	Chain  string `json:"chain"`
	Height uint64 `json:"height"`
	Found  bool   `json:"found"`
}

type APIRecord struct {
	Chain     string          `json:"chain"`
	Hash      string          `json:"hash"`
	Block     *uint64         `json:"block,omitempty"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func newAPIRecord(rec types.JournalRecord) APIRecord {
	return APIRecord{
		Chain:     rec.Chain.String(),
		Hash:      rec.Hash,
		Block:     rec.Block,
		From:      rec.From,
		To:        rec.To,
		Kind:      rec.Kind.String(),
		Status:    rec.Status.String(),
		Value:     json.RawMessage(rec.Value),
		UpdatedAt: rec.UpdatedAt,
	}
}

func newAPIRecords(recs []types.JournalRecord) []APIRecord {
	out := make([]APIRecord, len(recs))
	for i, rec := range recs {
		out[i] = newAPIRecord(rec)
	}
	return out
}
