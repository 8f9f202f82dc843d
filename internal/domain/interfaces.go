package domain

// KeyRecorder persists the public half of a freshly generated key pair.
// Each call replaces whatever was recorded before.
type KeyRecorder interface {
	ReplacePublicKey(pub string) error
}

// SelectionRecorder persists the latest decoy selection with replace-all semantics
type SelectionRecorder interface {
	ReplaceDomainSelection(sel DecoySelection) error
}

// DecoyReader reads back the latest persisted records
type DecoyReader interface {
	LatestDomainSelection() (*StoredSelection, error)
	LatestPublicKey() (*StoredPublicKey, error)
}

// DecoyStore is the full record store used by the rotation stages
type DecoyStore interface {
	KeyRecorder
	SelectionRecorder
	DecoyReader
	InitializeSchema() error
	Ping() error
	Close() error
}
