package model

// Version constants for the local database and wire formats.
const (
	// SchemaVersion is the local database schema version.
	SchemaVersion = 2

	// ClientVersion is reported in the User-Agent of outgoing requests.
	ClientVersion = "0.3.0"
)
