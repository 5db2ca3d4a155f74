package core

import (
	"strconv"
	"sync"
	"time"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
	"github.com/wangjia184/sortedset"
)

// Aggregate state of the notification list for one service, or for
// all services when queried without an identity.
type NotificationListStatus struct {
	Total  int
	Unseen int
}

// Batches seen notification ids and flushes them transactionally.
// MarkSeen only mutates the in-memory batch, the store write happens
// on the periodic Flush, so rapid bursts of seen events collapse
// into a single transaction.
type Reconciler struct {
	// Synchronization for batch mutations.
	mutex *sync.Mutex

	// The pending batch, ordered by the moment each id was first
	// seen. The reconciler is the single owner, ids enter through
	// MarkSeen and leave only after a successful commit.
	batch *sortedset.SortedSet

	storage  types.Storage
	notifier types.Notifier

	// Reconciler logger.
	log types.Logger

	clock func() time.Time
}

func NewReconciler(storage types.Storage, notifier types.Notifier, log types.Logger) *Reconciler {
	return &Reconciler{
		mutex:    &sync.Mutex{},
		batch:    sortedset.New(),
		storage:  storage,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
}

// MarkSeen adds the id to the batch. Adding an id already present is
// a no-op, set semantics, so callers may mark freely on every user
// interaction.
func (r *Reconciler) MarkSeen(id int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	key := strconv.FormatInt(id, 10)
	if r.batch.GetByKey(key) != nil {
		return
	}
	r.batch.AddOrUpdate(key, sortedset.SCORE(r.clock().UnixNano()), id)
}

// Pending reports how many ids await the next flush.
func (r *Reconciler) Pending() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.batch.GetCount()
}

// Flush marks every batched id as seen inside one transaction,
// cancels the surfaced notification of each marked id and prunes
// surfaced notifications whose record no longer exists. The batch is
// authoritative until the commit succeeds, ids are removed from it
// only afterwards, so a failed flush retries the same ids later.
// Marking an already seen id again is a no-op, a retried batch never
// double-applies.
func (r *Reconciler) Flush() error {
	r.mutex.Lock()
	snapshot := r.batch.GetByRankRange(1, -1, false)
	r.mutex.Unlock()

	ids := make([]int64, 0, len(snapshot))
	for _, node := range snapshot {
		ids = append(ids, node.Value.(int64))
	}

	var cancel []int64
	err := r.storage.Transaction(func(tx types.Storage) error {
		cancel = cancel[:0]
		for _, id := range ids {
			exists, err := tx.MarkNotificationSeen(id)
			if err != nil {
				return err
			}
			if exists {
				cancel = append(cancel, id)
			}
		}
		// Orphan cleanup: a surfaced notification whose record is
		// gone has nothing left to represent.
		for _, id := range r.notifier.Active() {
			rec, err := tx.Notification(id)
			if err != nil {
				return err
			}
			if rec == nil {
				cancel = append(cancel, id)
			}
		}
		return nil
	})
	if err != nil {
		return &types.StorageError{Op: "flushing seen notifications", Cause: err}
	}

	for _, id := range cancel {
		r.notifier.Cancel(id)
	}

	r.mutex.Lock()
	for _, id := range ids {
		r.batch.Remove(strconv.FormatInt(id, 10))
	}
	r.mutex.Unlock()
	return nil
}

// QueryListStatus reports how many notifications exist for the
// service and how many are still unseen, counting only entries
// within the actuality window of the own-peer private configuration.
// An empty identity queries across all services.
func (r *Reconciler) QueryListStatus(svcIdent types.ServiceIdentity) (NotificationListStatus, error) {
	var status NotificationListStatus

	var svcID int64
	if !svcIdent.Empty() {
		svcRecord, err := r.storage.SearchGlobalIdentEntry(types.KindForeignService, svcIdent)
		if err != nil {
			return status, &types.StorageError{Op: "loading service entry", Cause: err}
		}
		if svcRecord == nil {
			return status, &types.ConfigurationError{Reason: "unknown service " + svcIdent.String()}
		}
		svcID = svcRecord.ID
	}

	var since int64
	if own, err := r.storage.OwnPeerEntry(); err == nil && own != nil {
		if cfg, err := types.PrivateConfigFromPool(&own.Pool); err == nil && cfg.NotificationActualDays > 0 {
			window := time.Duration(cfg.NotificationActualDays) * 24 * time.Hour
			since = r.clock().Add(-window).UnixNano() / int64(time.Millisecond)
		}
	}

	total, unseen, err := r.storage.NotificationCounts(svcID, since)
	if err != nil {
		return status, &types.StorageError{Op: "counting notifications", Cause: err}
	}
	status.Total = total
	status.Unseen = unseen
	return status, nil
}
