package types

import (
	"bytes"
	"encoding/base64"
)

// Opaque fixed-format binary identifier of a remote peer service.
// Immutable once assigned, used as the primary correlation key
// across commands, documents and cached results.
type ServiceIdentity []byte

// Empty verify if the identity holds no bytes at all.
func (s ServiceIdentity) Empty() bool {
	return len(s) == 0
}

// Equal compares two identities byte-wise.
func (s ServiceIdentity) Equal(o ServiceIdentity) bool {
	return bytes.Equal(s, o)
}

// String encodes the identity for keys and log lines.
func (s ServiceIdentity) String() string {
	return base64.StdEncoding.EncodeToString(s)
}

// Direction tags every document transmission with its travel
// direction, used to select the correct query and storage path.
type Direction int

const (
	// Document travelling from the service to this client.
	Incoming Direction = -1

	// Document travelling from this client to the service.
	Outgoing Direction = +1
)

// Which kind of unit a stored record represents.
type RecordKind int

const (
	KindUndef RecordKind = iota

	// The record describing this client itself.
	KindOwnPeer

	// A remote peer service entry.
	KindForeignService

	// A persisted business document or a cached command result.
	KindDocument

	// A notification entry surfaced to the user.
	KindNotification
)

// The document type class a stored record belongs to.
type DocType int

const (
	DocTypeUndef DocType = iota

	// A plain business document, the type used when posting.
	DocTypeGeneric

	// Cached result of an order prerequisites query.
	DocTypeOrderPrereq

	// Cached result of an indoor service prerequisites query.
	DocTypeIndoorSvcPrereq

	// Cached result of a report query.
	DocTypeReport

	// Service-wide auxiliary data stored without a command UUID,
	// for example a debt registry filled part by part.
	DocTypeDebtList
)

// Bit set carried by every stored record. The low byte holds the
// document lifecycle status, the bits above are capabilities and
// transient markers.
type RecordFlag uint32

const (
	// Mask selecting the document lifecycle status bits.
	StatusMask RecordFlag = 0x00ff

	// The record was handed to the transport and the remote peer
	// did not acknowledge it yet. Cleared only on a terminal
	// response, so a crash mid-transmission stays recoverable.
	FlagInTransit RecordFlag = 0x0100

	// The record itself describes an intermediary/discovery
	// service, consulted when building the reachable service list.
	FlagMediator RecordFlag = 0x0200

	// The notification record was observed by the user.
	FlagSeen RecordFlag = 0x0400
)

// Document lifecycle status, stored in the low byte of RecordFlag.
type DocStatus uint8

const (
	DocStatusUndef DocStatus = iota
	DocStatusDraft
	DocStatusWaitForApproval
	DocStatusApproved
	DocStatusRejected
	DocStatusAccepted
	DocStatusFinished
)

// Status extracts the lifecycle status out of the flag set.
func (f RecordFlag) Status() DocStatus {
	return DocStatus(f & StatusMask)
}

// WithStatus replaces the lifecycle status bits, keeping the rest.
func (f RecordFlag) WithStatus(s DocStatus) RecordFlag {
	return (f &^ StatusMask) | RecordFlag(s)
}

// Tags identifying payloads inside a record blob pool. Keys are
// unique per pool.
type BlobTag int

const (
	TagUndef BlobTag = iota

	// The raw serialized document or result body.
	TagRawData

	// The declaration describing how the raw data should be
	// interpreted and presented.
	TagDocDeclaration

	// The service configuration (endpoint, messaging credentials).
	TagConfig

	// The own-peer private configuration.
	TagPrivateConfig

	// Copy of the service binary identity.
	TagSvcIdent

	// Messaging broker authentication reference.
	TagMqbAuth

	// Messaging broker secret.
	TagMqbSecret
)
