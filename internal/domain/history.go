package domain

// HoldingSnapshot records the ordered token ids one aggregation run returned.
// Corresponds to holding_snapshots table in PostgreSQL.
type HoldingSnapshot struct {
	ID          string   // uuid
	Account     string   // checksummed hex address
	Contract    string   // checksummed hex address
	BlockNumber *uint64  // chain head read when the snapshot was recorded (nullable)
	Balance     string   // decimal uint256 balance the run enumerated against
	TokenIDs    []string // decimal token ids in enumeration order
	CreatedAt   int64    // record creation timestamp (ms)
}

// AggregationRun captures counters of one completed aggregation run.
// Corresponds to aggregation_runs table in ClickHouse.
type AggregationRun struct {
	RunID       string
	Account     string
	Contract    string
	Balance     uint64
	AssetCount  uint32
	Skipped     uint32 // enumeration indices dropped
	URIFailures uint32
	DurationMs  uint64
	CompletedAt int64 // ms
}
