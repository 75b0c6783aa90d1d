package modlog

import "context"

// Store persists case ledgers. Each community's ledger is written
// wholesale on every mutation; implementations must preserve the wire
// format produced by the case codec.
type Store interface {
	// Load reads every community's ledger.
	Load(ctx context.Context) (map[string]map[int]*Case, error)
	// Save writes one community's full ledger.
	Save(ctx context.Context, community string, cases map[int]*Case) error
	// Reset removes one community's ledger.
	Reset(ctx context.Context, community string) error
	// Close releases the store's resources.
	Close() error
}
