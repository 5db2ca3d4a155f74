package definition

import (
	"bytes"
	"sync"
	"time"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Complete record store held in memory. Used by tests and by setups
// that do not need durability across restarts. Transactions run
// against a deep copy of the state, the copy replaces the live state
// only when the transaction body succeeds.
type InMemoryStorage struct {
	// Synchronization for all operations.
	mutex *sync.Mutex

	state *memoryState

	clock func() time.Time
}

type memoryState struct {
	sequence int64
	records  map[int64]*types.StoredRecord
	requests map[int64]types.DocumentRequestEntry
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		mutex: &sync.Mutex{},
		state: &memoryState{
			records:  make(map[int64]*types.StoredRecord),
			requests: make(map[int64]types.DocumentRequestEntry),
		},
		clock: time.Now,
	}
}

func (s *InMemoryStorage) OwnPeerEntry() (*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.ownPeerEntry()
}

func (s *InMemoryStorage) SearchGlobalIdentEntry(kind types.RecordKind, ident []byte) (*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.searchGlobalIdentEntry(kind, ident)
}

func (s *InMemoryStorage) Record(id int64) (*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.record(id)
}

func (s *InMemoryStorage) PutRecord(rec *types.StoredRecord) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.putRecord(rec, s.nowMs())
}

func (s *InMemoryStorage) PutDocument(dir types.Direction, docType types.DocType, flags types.RecordFlag,
	expiration int64, ident []byte, svcID int64, pool types.TaggedBlobPool) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.putDocument(dir, docType, flags, expiration, ident, svcID, pool, s.nowMs())
}

func (s *InMemoryStorage) DocumentsByIdent(docType types.DocType, ident []byte) ([]*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.documentsByIdent(docType, ident)
}

func (s *InMemoryStorage) SetRecordFlags(id int64, flags types.RecordFlag) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.setRecordFlags(id, flags)
}

func (s *InMemoryStorage) InTransitDocuments() ([]*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.inTransitDocuments()
}

func (s *InMemoryStorage) MediatorEntries() ([]*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.mediatorEntries()
}

func (s *InMemoryStorage) PutRequestEntry(entry types.DocumentRequestEntry) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.putRequestEntry(entry)
}

func (s *InMemoryStorage) TakeRequestEntry(docID int64) (*types.DocumentRequestEntry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.takeRequestEntry(docID)
}

func (s *InMemoryStorage) Notification(id int64) (*types.StoredRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.notification(id)
}

func (s *InMemoryStorage) MarkNotificationSeen(id int64) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.markNotificationSeen(id)
}

func (s *InMemoryStorage) NotificationCounts(svcID int64, sinceMs int64) (int, int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state.notificationCounts(svcID, sinceMs)
}

// Transaction runs fn against a copy of the state. The copy becomes
// the live state only when fn returns nil, so a failed body leaves
// the store untouched.
func (s *InMemoryStorage) Transaction(fn func(types.Storage) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	work := &transactionalStorage{state: s.state.clone(), clock: s.clock}
	if err := fn(work); err != nil {
		return err
	}
	s.state = work.state
	return nil
}

func (s *InMemoryStorage) nowMs() int64 {
	return s.clock().UnixNano() / int64(time.Millisecond)
}

// Storage view over the state copy of an open transaction. The outer
// mutex is already held, no locking here. A nested Transaction joins
// the enclosing one.
type transactionalStorage struct {
	state *memoryState
	clock func() time.Time
}

func (t *transactionalStorage) OwnPeerEntry() (*types.StoredRecord, error) {
	return t.state.ownPeerEntry()
}

func (t *transactionalStorage) SearchGlobalIdentEntry(kind types.RecordKind, ident []byte) (*types.StoredRecord, error) {
	return t.state.searchGlobalIdentEntry(kind, ident)
}

func (t *transactionalStorage) Record(id int64) (*types.StoredRecord, error) {
	return t.state.record(id)
}

func (t *transactionalStorage) PutRecord(rec *types.StoredRecord) (int64, error) {
	return t.state.putRecord(rec, t.nowMs())
}

func (t *transactionalStorage) PutDocument(dir types.Direction, docType types.DocType, flags types.RecordFlag,
	expiration int64, ident []byte, svcID int64, pool types.TaggedBlobPool) (int64, error) {
	return t.state.putDocument(dir, docType, flags, expiration, ident, svcID, pool, t.nowMs())
}

func (t *transactionalStorage) DocumentsByIdent(docType types.DocType, ident []byte) ([]*types.StoredRecord, error) {
	return t.state.documentsByIdent(docType, ident)
}

func (t *transactionalStorage) SetRecordFlags(id int64, flags types.RecordFlag) error {
	return t.state.setRecordFlags(id, flags)
}

func (t *transactionalStorage) InTransitDocuments() ([]*types.StoredRecord, error) {
	return t.state.inTransitDocuments()
}

func (t *transactionalStorage) MediatorEntries() ([]*types.StoredRecord, error) {
	return t.state.mediatorEntries()
}

func (t *transactionalStorage) PutRequestEntry(entry types.DocumentRequestEntry) error {
	return t.state.putRequestEntry(entry)
}

func (t *transactionalStorage) TakeRequestEntry(docID int64) (*types.DocumentRequestEntry, error) {
	return t.state.takeRequestEntry(docID)
}

func (t *transactionalStorage) Notification(id int64) (*types.StoredRecord, error) {
	return t.state.notification(id)
}

func (t *transactionalStorage) MarkNotificationSeen(id int64) (bool, error) {
	return t.state.markNotificationSeen(id)
}

func (t *transactionalStorage) NotificationCounts(svcID int64, sinceMs int64) (int, int, error) {
	return t.state.notificationCounts(svcID, sinceMs)
}

func (t *transactionalStorage) Transaction(fn func(types.Storage) error) error {
	return fn(t)
}

func (t *transactionalStorage) nowMs() int64 {
	return t.clock().UnixNano() / int64(time.Millisecond)
}

func (m *memoryState) clone() *memoryState {
	c := &memoryState{
		sequence: m.sequence,
		records:  make(map[int64]*types.StoredRecord, len(m.records)),
		requests: make(map[int64]types.DocumentRequestEntry, len(m.requests)),
	}
	for id, rec := range m.records {
		c.records[id] = cloneRecord(rec)
	}
	for id, entry := range m.requests {
		c.requests[id] = entry
	}
	return c
}

func (m *memoryState) ownPeerEntry() (*types.StoredRecord, error) {
	for _, rec := range m.records {
		if rec.Kind == types.KindOwnPeer {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (m *memoryState) searchGlobalIdentEntry(kind types.RecordKind, ident []byte) (*types.StoredRecord, error) {
	for _, rec := range m.records {
		if rec.Kind == kind && bytes.Equal(rec.GlobalIdent, ident) {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (m *memoryState) record(id int64) (*types.StoredRecord, error) {
	rec, exists := m.records[id]
	if !exists {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (m *memoryState) putRecord(rec *types.StoredRecord, nowMs int64) (int64, error) {
	if rec == nil {
		return 0, types.ErrInvalidArgument
	}
	held := cloneRecord(rec)
	held.Timestamp = nowMs
	if held.ID == 0 {
		m.sequence++
		held.ID = m.sequence
	}
	m.records[held.ID] = held
	return held.ID, nil
}

func (m *memoryState) putDocument(dir types.Direction, docType types.DocType, flags types.RecordFlag,
	expiration int64, ident []byte, svcID int64, pool types.TaggedBlobPool, nowMs int64) (int64, error) {
	if docType == types.DocTypeUndef || len(ident) == 0 {
		return 0, types.ErrInvalidArgument
	}
	rec := &types.StoredRecord{
		Kind:        types.KindDocument,
		DocType:     docType,
		Direction:   dir,
		Flags:       flags,
		Expiration:  expiration,
		GlobalIdent: append([]byte(nil), ident...),
		ServiceID:   svcID,
		Pool:        pool.Clone(),
	}
	for id, existing := range m.records {
		if existing.Kind == types.KindDocument && existing.DocType == docType &&
			existing.Direction == dir && bytes.Equal(existing.GlobalIdent, ident) {
			rec.ID = id
			break
		}
	}
	return m.putRecord(rec, nowMs)
}

func (m *memoryState) documentsByIdent(docType types.DocType, ident []byte) ([]*types.StoredRecord, error) {
	var records []*types.StoredRecord
	for _, rec := range m.records {
		if rec.Kind == types.KindDocument && rec.DocType == docType &&
			bytes.Equal(rec.GlobalIdent, ident) {
			records = append(records, cloneRecord(rec))
		}
	}
	return records, nil
}

func (m *memoryState) setRecordFlags(id int64, flags types.RecordFlag) error {
	rec, exists := m.records[id]
	if !exists {
		return types.ErrInvalidArgument
	}
	rec.Flags = flags
	return nil
}

func (m *memoryState) inTransitDocuments() ([]*types.StoredRecord, error) {
	var records []*types.StoredRecord
	for _, rec := range m.records {
		if rec.Kind == types.KindDocument && rec.Direction == types.Outgoing &&
			rec.Flags&types.FlagInTransit != 0 {
			records = append(records, cloneRecord(rec))
		}
	}
	return records, nil
}

func (m *memoryState) mediatorEntries() ([]*types.StoredRecord, error) {
	var entries []*types.StoredRecord
	for _, rec := range m.records {
		if rec.Kind == types.KindForeignService && rec.Flags&types.FlagMediator != 0 {
			entries = append(entries, cloneRecord(rec))
		}
	}
	return entries, nil
}

func (m *memoryState) putRequestEntry(entry types.DocumentRequestEntry) error {
	if entry.DocID == 0 {
		return types.ErrInvalidArgument
	}
	m.requests[entry.DocID] = entry
	return nil
}

func (m *memoryState) takeRequestEntry(docID int64) (*types.DocumentRequestEntry, error) {
	entry, exists := m.requests[docID]
	if !exists {
		return nil, nil
	}
	delete(m.requests, docID)
	return &entry, nil
}

func (m *memoryState) notification(id int64) (*types.StoredRecord, error) {
	rec, exists := m.records[id]
	if !exists || rec.Kind != types.KindNotification {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (m *memoryState) markNotificationSeen(id int64) (bool, error) {
	rec, exists := m.records[id]
	if !exists || rec.Kind != types.KindNotification {
		return false, nil
	}
	rec.Flags |= types.FlagSeen
	return true, nil
}

func (m *memoryState) notificationCounts(svcID int64, sinceMs int64) (int, int, error) {
	var total, unseen int
	for _, rec := range m.records {
		if rec.Kind != types.KindNotification {
			continue
		}
		if svcID != 0 && rec.ServiceID != svcID {
			continue
		}
		if sinceMs > 0 && rec.Timestamp < sinceMs {
			continue
		}
		total++
		if rec.Flags&types.FlagSeen == 0 {
			unseen++
		}
	}
	return total, unseen, nil
}

func cloneRecord(rec *types.StoredRecord) *types.StoredRecord {
	c := *rec
	c.GlobalIdent = append([]byte(nil), rec.GlobalIdent...)
	c.Pool = rec.Pool.Clone()
	return &c
}
