package types

import "encoding/json"

// Storage is the durable record store collaborator, the single
// source of truth for identities, documents and notifications.
// Implementations must support transactional multi-record writes
// and concurrent access from multiple worker routines.
type Storage interface {
	// OwnPeerEntry returns the record describing this client, nil
	// when the client was never provisioned.
	OwnPeerEntry() (*StoredRecord, error)

	// SearchGlobalIdentEntry finds the record of the given kind
	// carrying the global binary ident, nil when absent.
	SearchGlobalIdentEntry(kind RecordKind, ident []byte) (*StoredRecord, error)

	// Record loads a record by store id, nil when absent.
	Record(id int64) (*StoredRecord, error)

	// PutRecord inserts the record when ID is zero, rewrites it in
	// place otherwise. Returns the store id.
	PutRecord(rec *StoredRecord) (int64, error)

	// PutDocument persists a document record under the derived
	// storage ident. An existing record with the same type, ident
	// and direction is rewritten in place, keeping its id.
	PutDocument(dir Direction, docType DocType, flags RecordFlag, expiration int64, ident []byte, svcID int64, pool TaggedBlobPool) (int64, error)

	// DocumentsByIdent lists the records of the document type
	// stored under the ident. Normally at most one.
	DocumentsByIdent(docType DocType, ident []byte) ([]*StoredRecord, error)

	// SetRecordFlags rewrites the flag set of the record.
	SetRecordFlags(id int64, flags RecordFlag) error

	// InTransitDocuments lists outgoing documents still carrying the
	// in-transit flag, the candidates for a send re-attempt.
	InTransitDocuments() ([]*StoredRecord, error)

	// MediatorEntries lists peer records carrying the mediator
	// capability flag.
	MediatorEntries() ([]*StoredRecord, error)

	// PutRequestEntry registers the post-acknowledgment transition
	// of a document handed to the transport.
	PutRequestEntry(entry DocumentRequestEntry) error

	// TakeRequestEntry removes and returns the registered entry for
	// the document, nil when none is registered.
	TakeRequestEntry(docID int64) (*DocumentRequestEntry, error)

	// Notification loads a notification record by id, nil when the
	// store holds none.
	Notification(id int64) (*StoredRecord, error)

	// MarkNotificationSeen marks the notification as seen. Marking
	// an already seen id again is a no-op, not an error. Returns
	// whether a notification with the id exists at all.
	MarkNotificationSeen(id int64) (bool, error)

	// NotificationCounts reports how many notifications exist for
	// the service (zero id means all) and how many of those are
	// unseen, counting only entries at or after the since moment
	// when it is non-zero.
	NotificationCounts(svcID int64, sinceMs int64) (total int, unseen int, err error)

	// Transaction runs fn against a view of the store where every
	// write is applied atomically: either all writes commit or none
	// do.
	Transaction(fn func(Storage) error) error
}

// Notifier is the externally surfaced notification collaborator,
// the analogue of a system notification area. The engine only ever
// cancels entries and inspects which ids are still active.
type Notifier interface {
	// Cancel removes the surfaced notification with the id.
	Cancel(id int64)

	// Active lists the ids currently surfaced.
	Active() []int64
}

// Service endpoint configuration, consumed from the service record
// pool under TagConfig. Presence of MqbAuth without an explicit URL
// scheme implies a messaging-protocol endpoint, otherwise HTTP(S)
// is assumed.
type ServiceConfig struct {
	URL       string `json:"url"`
	MqbAuth   string `json:"mqbauth,omitempty"`
	MqbSecret string `json:"mqbsecret,omitempty"`
}

// ServiceConfigFromPool parses the endpoint configuration out of a
// service record pool.
func ServiceConfigFromPool(pool *TaggedBlobPool) (*ServiceConfig, error) {
	raw := pool.Get(TagConfig)
	if len(raw) == 0 {
		return nil, &ConfigurationError{Reason: "service entry carries no configuration"}
	}
	var cfg ServiceConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &SerializationError{Cause: err}
	}
	return &cfg, nil
}

// Own-peer private configuration, stored in the own-peer record
// pool under TagPrivateConfig.
type PrivateConfig struct {
	PrefLanguage           string `json:"preflanguage,omitempty"`
	NotificationActualDays int    `json:"notificationactualdays,omitempty"`
}

// PrivateConfigFromPool parses the private configuration out of the
// own-peer record pool, an empty config when the pool carries none.
func PrivateConfigFromPool(pool *TaggedBlobPool) (*PrivateConfig, error) {
	var cfg PrivateConfig
	raw := pool.Get(TagPrivateConfig)
	if len(raw) == 0 {
		return &cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, &SerializationError{Cause: err}
	}
	return &cfg, nil
}
