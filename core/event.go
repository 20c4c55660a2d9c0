package core

import (
	"math"
	"time"
)

// Version is the position of an event within its stream. The first event of a
// stream has version 1; version 0 means "before any event".
type Version uint64

// VersionMax requests the full history of a stream.
const VersionMax = Version(math.MaxUint64)

// Event is the stored representation of a single stream entry. Data and
// Metadata are opaque to the store; the layer above owns their encoding.
type Event struct {
	Bucket        string
	AggregateID   string
	AggregateType string
	Version       Version
	CommitID      string
	Reason        string
	Timestamp     time.Time
	Data          []byte
	Metadata      []byte
}

// Commit is the unit of persistence: a contiguous batch of events for one
// stream, expected to follow immediately after ExpectedVersion.
type Commit struct {
	Bucket      string
	AggregateID string
	CommitID    string
	// ExpectedVersion is the stream version the writer last observed. The
	// store must reject the commit if its authoritative version differs.
	ExpectedVersion Version
	Events          []Event
	Headers         []byte
}

// Snapshot is a compacted state capture of a stream at Version.
type Snapshot struct {
	Bucket      string
	AggregateID string
	Version     Version
	State       []byte
	Metadata    []byte
}
