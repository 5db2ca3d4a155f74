package types

import (
	"time"

	"github.com/google/uuid"
)

// The document type class a command result belongs to. This selects
// both the storage type of the cached result and whether a remote
// query is required at all.
type BaseCommandKind int

const (
	KindGeneric BaseCommandKind = iota
	KindOrderPrereq
	KindIndoorSvcPrereq
	KindReport
	KindSearch
	KindIncomingList
)

// ResultDocType maps the command kind to the document type its
// cached result is stored under. Zero means results of this kind
// are never cached.
func (k BaseCommandKind) ResultDocType() DocType {
	switch k {
	case KindOrderPrereq:
		return DocTypeOrderPrereq
	case KindIndoorSvcPrereq:
		return DocTypeIndoorSvcPrereq
	case KindReport:
		return DocTypeReport
	}
	return DocTypeUndef
}

// QueryNeeded reports whether the kind requires a remote query when
// no usable cached result exists.
func (k BaseCommandKind) QueryNeeded() bool {
	return k.ResultDocType() != DocTypeUndef
}

// Describes a named, UUID-identified operation invocable against a
// service. Immutable, identified by Uuid for dedupe purposes.
type Descriptor struct {
	Uuid        uuid.UUID
	BaseKind    BaseCommandKind
	Name        string
	Description string
}

// Derived state of a command, computed fresh each time from the
// pending tracker and the cache resolver, never persisted.
type PrestatusValue int

const (
	PrestatusUnknown PrestatusValue = iota

	// A request for this command is currently awaiting a response.
	PrestatusPending

	// A usable cached result is stored locally.
	PrestatusActualResultStored

	// The command requires a remote query to produce a result.
	PrestatusQueryNeeded

	// The command executes without a cacheable round trip.
	PrestatusInstant
)

// Prestatus couples the derived state with a coarse wait hint for
// pending commands. Zero hint means the remaining time is unknown.
type Prestatus struct {
	S           PrestatusValue
	WaitingHint time.Duration
}
