package domain

import "context"

// Fetcher pulls one batch of raw telemetry from the upstream collectors.
type Fetcher interface {
	FetchAll(ctx context.Context) (RawBatch, error)
}

// BlobStore is the three-operation persistence contract the core relies on.
// Keys are slash-separated, cycle-timestamp-derived strings
// ("snapshots/20251103_061500"); values are serialized record sets or
// decisions. The core assumes nothing else about the backend.
type BlobStore interface {
	Put(ctx context.Context, key string, blob []byte) error
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Dispatcher delivers governance decisions to the downstream action
// pipelines. Implementations must be safe to retry: the scheduler may invoke
// the same dispatch twice after an ambiguous failure.
type Dispatcher interface {
	DispatchEnforcement(ctx context.Context, order EnforcementOrder) error
	DispatchAccountability(ctx context.Context, req AccountabilityRequest) error
}

// RegionInfo is the administrative region a coordinate falls in.
type RegionInfo struct {
	Region   string
	District string
}

// RegionResolver maps coordinates to an administrative region, used to fill
// fire events that arrive without one. Optional; a nil resolver leaves the
// region empty and correlation falls back to "Unknown".
type RegionResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (RegionInfo, error)
}
