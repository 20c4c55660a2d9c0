// Package eventfold is the persistence core of an event-sourced aggregate
// framework. It loads aggregate state by replaying (or snapshot-accelerating)
// an ordered event stream, tracks uncommitted changes per aggregate instance
// inside a unit-of-work scoped repository, and commits them with
// optimistic-concurrency protection.
package eventfold

import "github.com/eventfold/eventfold/core"

// Version re-exports the store-level stream position type.
type Version = core.Version

// VersionMax requests the full history of a stream.
const VersionMax = core.VersionMax

// DefaultBucket is used when no bucket is specified.
const DefaultBucket = "default"

// Encoder serializes event data, metadata and snapshot state.
type Encoder interface {
	Serialize(v interface{}) ([]byte, error)
	Deserialize(data []byte, v interface{}) error
}

type encoder = Encoder

func streamKey(bucket, id string) string {
	return bucket + "/" + id
}
