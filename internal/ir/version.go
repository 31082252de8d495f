package ir

const (
	// SchemaVersion is the ledger schema version, mirrored in PRAGMA user_version.
	SchemaVersion = 1

	// EngineVersion is the railyard engine version.
	EngineVersion = "0.1.0"
)
