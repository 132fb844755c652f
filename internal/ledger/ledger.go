package ledger

// Ledger defines the export history operations.
// Consumers should depend on this interface rather than the concrete *DB type.
type Ledger interface {
	RecordRun(run RunRow, outputs []OutputRow) error
	GetRun(id string) (*RunRow, error)
	ListRuns(limit int) ([]RunRow, error)
	Outputs(runID string) ([]OutputRow, error)
	Close() error
}

// Verify *DB satisfies Ledger at compile time.
var _ Ledger = (*DB)(nil)
