package ir

// Version constants recorded on every trial.
const (
	// SchemaVersion identifies the layout of the provenance tables.
	SchemaVersion = "1"

	// ToolVersion is the provcap version.
	ToolVersion = "0.1.0"
)
