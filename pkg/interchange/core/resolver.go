package core

import (
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/helper"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Decides, for a given (service, command), whether a previously
// stored, non-expired result can be reused. Resolve never mutates
// durable state and never blocks beyond the local store read, a
// TTL'd memory layer keeps the hot identifiers away from the store.
type Resolver struct {
	// The durable store stays authoritative.
	storage types.Storage

	// Read-through layer keyed by storage ident. Entries expire
	// together with the record they hold.
	memory *ttlcache.Cache

	// Resolver logger.
	log types.Logger

	clock func() time.Time
}

func NewResolver(storage types.Storage, log types.Logger) *Resolver {
	c := ttlcache.NewCache()
	c.SetTTL(10 * time.Minute)
	return &Resolver{
		storage: storage,
		memory:  c,
		log:     log,
		clock:   time.Now,
	}
}

// Resolve finds the usable cached result of the command, nil when
// none exists. An expired match is treated as absent, a fresh
// request must be issued by the caller. When multiple records match
// the most recent timestamp wins, the others are ignored.
func (r *Resolver) Resolve(svcIdent types.ServiceIdentity, cmd *types.Descriptor) (*types.StoredRecord, error) {
	docType := cmd.BaseKind.ResultDocType()
	if docType == types.DocTypeUndef {
		return nil, nil
	}
	ident := helper.DocumentStorageIdent(svcIdent, cmd.Uuid)
	now := r.clock().UnixNano() / int64(time.Millisecond)

	key := helper.IdentKey(ident)
	if value, exists := r.memory.Get(key); exists {
		rec := value.(*types.StoredRecord)
		if rec.Usable(now) {
			return rec, nil
		}
		r.memory.Remove(key)
	}

	records, err := r.storage.DocumentsByIdent(docType, ident)
	if err != nil {
		return nil, &types.StorageError{Op: "resolving cached result", Cause: err}
	}
	recent := types.MostRecentRecord(records)
	if recent == nil || !recent.Usable(now) {
		return nil, nil
	}
	r.remember(key, recent, now)
	return recent, nil
}

// Invalidate drops the memory layer entry for the command, called
// whenever a fresh result is persisted.
func (r *Resolver) Invalidate(svcIdent types.ServiceIdentity, cmd uuid.UUID) {
	r.memory.Remove(helper.IdentKey(helper.DocumentStorageIdent(svcIdent, cmd)))
}

func (r *Resolver) remember(key string, rec *types.StoredRecord, now int64) {
	if rec.Expiration > 0 {
		until := time.Duration(rec.Expiration-now) * time.Millisecond
		r.memory.SetWithTTL(key, rec, until)
		return
	}
	r.memory.Set(key, rec)
}
