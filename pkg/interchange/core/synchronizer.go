package core

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/helper"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Command name attached to outbound document envelopes.
const postDocumentCommand = "postdocument"

// Builds outbound document envelopes, persists a local copy before
// transmission and reconciles the post-acknowledgment status once
// the remote peer answers. The persisted copy carries the in-transit
// flag so a crash mid-transmission stays recoverable, a restarted
// client can see the record still marked and re-attempt the send.
type Synchronizer struct {
	storage    types.Storage
	dispatcher *Dispatcher

	// Synchronizer logger.
	log types.Logger

	clock func() time.Time
}

func NewSynchronizer(storage types.Storage, dispatcher *Dispatcher, log types.Logger) *Synchronizer {
	return &Synchronizer{
		storage:    storage,
		dispatcher: dispatcher,
		log:        log,
		clock:      time.Now,
	}
}

// PostDocument sends the document to the service. A document without
// any line item or backorder carries nothing to send and is silently
// treated as a no-op, not an error. The local copy is persisted with
// the in-transit flag together with the request entry describing the
// post-acknowledgment status transition, inside one transaction, and
// only then handed to the transport.
//
// Returns the local store id of the persisted copy and whether the
// document was accepted for transmission.
func (s *Synchronizer) PostDocument(svcIdent types.ServiceIdentity, flags types.ActionFlags,
	dir types.Direction, doc *types.Document, consumer types.Consumer) (int64, bool, error) {
	if !doc.Transmittable() {
		return 0, false, nil
	}
	if svcIdent.Empty() || doc.Uuid == uuid.Nil {
		return 0, false, types.ErrInvalidArgument
	}
	svcRecord, err := s.storage.SearchGlobalIdentEntry(types.KindForeignService, svcIdent)
	if err != nil {
		return 0, false, &types.StorageError{Op: "loading service entry", Cause: err}
	}
	if svcRecord == nil {
		return 0, false, &types.ConfigurationError{Reason: "unknown service " + svcIdent.String()}
	}

	key := PendingKey{Svc: svcIdent.String(), Cmd: doc.Uuid}
	if !s.dispatcher.tracker.acquire(key) {
		return 0, false, nil
	}

	body, err := json.Marshal(doc)
	if err != nil {
		s.dispatcher.tracker.release(key)
		return 0, false, &types.SerializationError{Cause: err}
	}
	now := s.nowMs()
	decl := &types.Declaration{
		Type:        "generic",
		Format:      "json",
		Time:        strconv.FormatInt(now, 10),
		ActionFlags: flags.String(),
	}
	declBody, err := json.Marshal(decl)
	if err != nil {
		s.dispatcher.tracker.release(key)
		return 0, false, &types.SerializationError{Cause: err}
	}

	entry := types.DocumentRequestEntry{
		DocUuid:             doc.Uuid,
		AfterTransmitStatus: doc.AfterTransmitStatus(),
	}
	ident := helper.DocumentStorageIdent(svcIdent, doc.Uuid)
	recordFlags := types.RecordFlag(0).WithStatus(doc.Status) | types.FlagInTransit
	var docID int64
	err = s.storage.Transaction(func(tx types.Storage) error {
		var pool types.TaggedBlobPool
		pool.Put(types.TagRawData, body)
		pool.Put(types.TagDocDeclaration, declBody)
		id, err := tx.PutDocument(dir, types.DocTypeGeneric, recordFlags, 0, ident,
			svcRecord.ID, pool)
		if err != nil {
			return err
		}
		docID = id
		entry.DocID = id
		return tx.PutRequestEntry(entry)
	})
	if err != nil {
		s.dispatcher.tracker.release(key)
		return 0, false, &types.StorageError{Op: "persisting outbound document", Cause: err}
	}

	payload, err := json.Marshal(envelope{
		Cmd:         postDocumentCommand,
		Time:        now,
		Document:    body,
		Declaration: decl,
	})
	if err != nil {
		s.dispatcher.tracker.release(key)
		return docID, false, &types.SerializationError{Cause: err}
	}

	s.dispatcher.submit(requestBlock{
		svcRecord:   svcRecord,
		svcIdent:    svcIdent,
		payload:     payload,
		consumer:    consumer,
		pending:     &key,
		docRequests: []types.DocumentRequestEntry{entry},
		onComplete: func(outcome *types.Outcome) {
			s.reconcile(docID, outcome)
		},
	})
	return docID, true, nil
}

// ResendInTransit re-attempts the send of every outgoing document
// still carrying the in-transit flag, run by the periodic poll. A
// document whose request is currently in flight is left alone, the
// pending entry already covers it. Returns how many re-attempts were
// handed to the transport.
func (s *Synchronizer) ResendInTransit() int {
	records, err := s.storage.InTransitDocuments()
	if err != nil {
		s.log.Errorf("listing in-transit documents failed. %v", err)
		return 0
	}

	attempted := 0
	for _, rec := range records {
		body := rec.Pool.Get(types.TagRawData)
		if len(body) == 0 {
			continue
		}
		var doc types.Document
		if err := json.Unmarshal(body, &doc); err != nil || doc.DocumentHeader == nil ||
			doc.Uuid == uuid.Nil {
			s.log.Warnf("in-transit document %d carries an unreadable body, skipped", rec.ID)
			continue
		}
		svcRecord, err := s.storage.Record(rec.ServiceID)
		if err != nil || svcRecord == nil {
			s.log.Warnf("in-transit document %d lost its service entry, skipped", rec.ID)
			continue
		}
		svcIdent := types.ServiceIdentity(svcRecord.GlobalIdent)

		key := PendingKey{Svc: svcIdent.String(), Cmd: doc.Uuid}
		if !s.dispatcher.tracker.acquire(key) {
			continue
		}
		decl := types.DeclarationFromPool(&rec.Pool)
		payload, err := json.Marshal(envelope{
			Cmd:         postDocumentCommand,
			Time:        s.nowMs(),
			Document:    body,
			Declaration: decl,
		})
		if err != nil {
			s.dispatcher.tracker.release(key)
			continue
		}
		docID := rec.ID
		s.dispatcher.submit(requestBlock{
			svcRecord: svcRecord,
			svcIdent:  svcIdent,
			payload:   payload,
			pending:   &key,
			onComplete: func(outcome *types.Outcome) {
				s.reconcile(docID, outcome)
			},
		})
		attempted++
	}
	return attempted
}

// reconcile applies the post-acknowledgment transition registered at
// dispatch time. The in-transit flag clears only on a terminal
// response produced by the remote peer. A transport failure, a local
// rejection or an exception leaves the record marked so the send can
// be re-attempted.
func (s *Synchronizer) reconcile(docID int64, outcome *types.Outcome) {
	switch {
	case outcome.Tag == types.ResultSuccess:
	case outcome.Tag == types.ResultError && outcome.Answered:
	default:
		return
	}
	err := s.storage.Transaction(func(tx types.Storage) error {
		entry, err := tx.TakeRequestEntry(docID)
		if err != nil {
			return err
		}
		rec, err := tx.Record(docID)
		if err != nil || rec == nil {
			return err
		}
		flags := rec.Flags &^ types.FlagInTransit
		if outcome.Tag == types.ResultSuccess && entry != nil {
			flags = flags.WithStatus(entry.AfterTransmitStatus)
		}
		return tx.SetRecordFlags(docID, flags)
	})
	if err != nil {
		s.log.Errorf("reconciling document %d after %s failed. %v", docID, outcome.Tag, err)
	}
}

// StoreServiceData persists service-wide auxiliary data, for example
// a debt registry filled part by part. The record is stored without
// a declaration under the ident derived from the service identity
// alone, rewriting any previous record of the same type.
func (s *Synchronizer) StoreServiceData(svcIdent types.ServiceIdentity, docType types.DocType,
	expiration int64, data []byte) (int64, error) {
	if svcIdent.Empty() || docType == types.DocTypeUndef || len(data) == 0 {
		return 0, types.ErrInvalidArgument
	}
	svcRecord, err := s.storage.SearchGlobalIdentEntry(types.KindForeignService, svcIdent)
	if err != nil {
		return 0, &types.StorageError{Op: "loading service entry", Cause: err}
	}
	if svcRecord == nil {
		return 0, &types.ConfigurationError{Reason: "unknown service " + svcIdent.String()}
	}
	var pool types.TaggedBlobPool
	pool.Put(types.TagRawData, data)
	ident := helper.DocumentStorageIdent(svcIdent, uuid.Nil)
	id, err := s.storage.PutDocument(types.Incoming, docType, 0, expiration, ident,
		svcRecord.ID, pool)
	if err != nil {
		return 0, &types.StorageError{Op: "persisting service data", Cause: err}
	}
	return id, nil
}

// LoadServiceData reads the auxiliary data back, nil when the store
// holds none or the record expired. Multiple matches resolve to the
// most recent one.
func (s *Synchronizer) LoadServiceData(svcIdent types.ServiceIdentity, docType types.DocType) (*types.StoredRecord, error) {
	if svcIdent.Empty() || docType == types.DocTypeUndef {
		return nil, types.ErrInvalidArgument
	}
	ident := helper.DocumentStorageIdent(svcIdent, uuid.Nil)
	records, err := s.storage.DocumentsByIdent(docType, ident)
	if err != nil {
		return nil, &types.StorageError{Op: "loading service data", Cause: err}
	}
	recent := types.MostRecentRecord(records)
	if recent == nil || !recent.Usable(s.nowMs()) {
		return nil, nil
	}
	return recent, nil
}

func (s *Synchronizer) nowMs() int64 {
	return s.clock().UnixNano() / int64(time.Millisecond)
}
