package analytics

import (
	"strconv"
	"time"
)

type EventType string

const (
	EventDocumentStatistics   EventType = "document_statistics"
	EventCollectionStatistics EventType = "collection_statistics"
	EventHuffmanEncode        EventType = "huffman_encode"
	EventHuffmanDecode        EventType = "huffman_decode"
)

type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeCached Outcome = "cached"
	OutcomeError  Outcome = "error"
)

// ComputationEvent describes one finished service operation. Fields that do
// not apply to an operation are left zero.
type ComputationEvent struct {
	Type         EventType `json:"type"`
	Outcome      Outcome   `json:"outcome"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	OwnerID      int64     `json:"owner_id"`
	DocumentID   int64     `json:"document_id,omitempty"`
	CollectionID int64     `json:"collection_id,omitempty"`
	Terms        int       `json:"terms,omitempty"`
	CorpusDocs   int       `json:"corpus_docs,omitempty"`
	InputRunes   int       `json:"input_runes,omitempty"`
	EncodedBits  int       `json:"encoded_bits,omitempty"`
	Ratio        float64   `json:"ratio,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id"`
}

// Tracker accepts events for asynchronous delivery.
type Tracker interface {
	Track(event ComputationEvent)
}

// NopTracker discards events; used when Kafka is disabled.
type NopTracker struct{}

func (NopTracker) Track(ComputationEvent) {}

// Key returns the Kafka partition key for an event: the owner, so one
// user's events stay ordered.
func (e ComputationEvent) Key() string {
	return strconv.FormatInt(e.OwnerID, 10)
}
