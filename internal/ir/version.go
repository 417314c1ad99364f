package ir

// Version constants for persisted records.
const (
	// LedgerVersion is the action ledger schema version.
	LedgerVersion = "1"

	// EngineVersion is the migration engine version.
	EngineVersion = "0.1.0"
)
