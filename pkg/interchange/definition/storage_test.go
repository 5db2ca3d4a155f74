package definition

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

func sqliteForTesting(t *testing.T) *SqliteStorage {
	t.Helper()
	storage, err := NewSqliteStorage(filepath.Join(t.TempDir(), "interchange.db"))
	if err != nil {
		t.Fatalf("failed opening database. %v", err)
	}
	t.Cleanup(func() {
		storage.Close()
	})
	return storage
}

func eachStorage(t *testing.T, run func(t *testing.T, storage types.Storage)) {
	t.Run("memory", func(t *testing.T) {
		run(t, NewInMemoryStorage())
	})
	t.Run("sqlite", func(t *testing.T) {
		run(t, sqliteForTesting(t))
	})
}

func TestStorage_RecordLifecycle(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		ident := []byte("service-ident")
		id, err := storage.PutRecord(&types.StoredRecord{
			Kind:        types.KindForeignService,
			GlobalIdent: ident,
		})
		if err != nil || id == 0 {
			t.Fatalf("got id %d err %v, want inserted", id, err)
		}

		rec, err := storage.Record(id)
		if err != nil || rec == nil {
			t.Fatalf("inserted record not loadable. %v", err)
		}
		if rec.Kind != types.KindForeignService || !bytes.Equal(rec.GlobalIdent, ident) {
			t.Fatalf("loaded record differs: %+v", rec)
		}
		if rec.Timestamp == 0 {
			t.Fatalf("persist must stamp the record")
		}

		found, err := storage.SearchGlobalIdentEntry(types.KindForeignService, ident)
		if err != nil || found == nil || found.ID != id {
			t.Fatalf("ident search got %v %v, want record %d", found, err, id)
		}
		if miss, _ := storage.SearchGlobalIdentEntry(types.KindOwnPeer, ident); miss != nil {
			t.Fatalf("search must honor the record kind")
		}
		if miss, _ := storage.Record(id + 100); miss != nil {
			t.Fatalf("absent id resolved a record")
		}
	})
}

func TestStorage_OwnPeerEntry(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		if rec, err := storage.OwnPeerEntry(); err != nil || rec != nil {
			t.Fatalf("unprovisioned store returned %v %v", rec, err)
		}
		id, err := storage.PutRecord(&types.StoredRecord{Kind: types.KindOwnPeer})
		if err != nil {
			t.Fatalf("failed provisioning. %v", err)
		}
		rec, err := storage.OwnPeerEntry()
		if err != nil || rec == nil || rec.ID != id {
			t.Fatalf("got %v %v, want record %d", rec, err, id)
		}
	})
}

func TestStorage_DocumentUpsert(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		ident := []byte("doc-ident")
		var pool types.TaggedBlobPool
		pool.Put(types.TagRawData, []byte("first"))

		first, err := storage.PutDocument(types.Incoming, types.DocTypeReport, 0, 0, ident, 1, pool)
		if err != nil || first == 0 {
			t.Fatalf("got id %d err %v, want inserted", first, err)
		}

		pool.Put(types.TagRawData, []byte("second"))
		second, err := storage.PutDocument(types.Incoming, types.DocTypeReport, 0, 0, ident, 1, pool)
		if err != nil {
			t.Fatalf("rewrite failed. %v", err)
		}
		if second != first {
			t.Fatalf("same type and ident must rewrite in place, got %d and %d", first, second)
		}

		// A different direction is a separate record.
		outgoing, err := storage.PutDocument(types.Outgoing, types.DocTypeReport, 0, 0, ident, 1, pool)
		if err != nil || outgoing == first {
			t.Fatalf("got id %d err %v, want a separate record", outgoing, err)
		}

		records, err := storage.DocumentsByIdent(types.DocTypeReport, ident)
		if err != nil || len(records) != 2 {
			t.Fatalf("got %d records err %v, want 2", len(records), err)
		}
	})
}

func TestStorage_FlagsAndInTransit(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		ident := []byte("doc-ident")
		var pool types.TaggedBlobPool
		pool.Put(types.TagRawData, []byte("doc"))
		flags := types.RecordFlag(0).WithStatus(types.DocStatusDraft) | types.FlagInTransit

		id, err := storage.PutDocument(types.Outgoing, types.DocTypeGeneric, flags, 0, ident, 1, pool)
		if err != nil {
			t.Fatalf("persist failed. %v", err)
		}

		transit, err := storage.InTransitDocuments()
		if err != nil || len(transit) != 1 || transit[0].ID != id {
			t.Fatalf("got %v err %v, want the outgoing document", transit, err)
		}

		cleared := flags &^ types.FlagInTransit
		if err := storage.SetRecordFlags(id, cleared.WithStatus(types.DocStatusWaitForApproval)); err != nil {
			t.Fatalf("flag rewrite failed. %v", err)
		}
		if transit, _ := storage.InTransitDocuments(); len(transit) != 0 {
			t.Fatalf("cleared document still listed as in transit")
		}
		rec, _ := storage.Record(id)
		if rec.Flags.Status() != types.DocStatusWaitForApproval {
			t.Fatalf("got status %d, want wait-for-approval", rec.Flags.Status())
		}

		if err := storage.SetRecordFlags(id+100, 0); !errors.Is(err, types.ErrInvalidArgument) {
			t.Fatalf("rewriting an absent record got %v", err)
		}
	})
}

func TestStorage_RequestEntries(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		entry := types.DocumentRequestEntry{
			DocUuid:             uuid.New(),
			DocID:               42,
			AfterTransmitStatus: types.DocStatusWaitForApproval,
		}
		if err := storage.PutRequestEntry(entry); err != nil {
			t.Fatalf("register failed. %v", err)
		}

		taken, err := storage.TakeRequestEntry(42)
		if err != nil || taken == nil {
			t.Fatalf("take failed. %v", err)
		}
		if taken.DocUuid != entry.DocUuid || taken.AfterTransmitStatus != entry.AfterTransmitStatus {
			t.Fatalf("got %+v, want %+v", taken, entry)
		}

		if again, _ := storage.TakeRequestEntry(42); again != nil {
			t.Fatalf("take must consume the entry")
		}
	})
}

func TestStorage_Notifications(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		id, err := storage.PutRecord(&types.StoredRecord{Kind: types.KindNotification, ServiceID: 7})
		if err != nil {
			t.Fatalf("seed failed. %v", err)
		}

		exists, err := storage.MarkNotificationSeen(id)
		if err != nil || !exists {
			t.Fatalf("got exists %v err %v, want marked", exists, err)
		}
		// Marking again is a no-op, not an error.
		if exists, err := storage.MarkNotificationSeen(id); err != nil || !exists {
			t.Fatalf("re-mark got exists %v err %v", exists, err)
		}
		if exists, err := storage.MarkNotificationSeen(id + 100); err != nil || exists {
			t.Fatalf("absent id got exists %v err %v", exists, err)
		}

		rec, _ := storage.Notification(id)
		if rec == nil || rec.Flags&types.FlagSeen == 0 {
			t.Fatalf("notification not marked seen: %+v", rec)
		}

		if _, err := storage.PutRecord(&types.StoredRecord{Kind: types.KindNotification, ServiceID: 7}); err != nil {
			t.Fatalf("seed failed. %v", err)
		}
		total, unseen, err := storage.NotificationCounts(7, 0)
		if err != nil || total != 2 || unseen != 1 {
			t.Fatalf("got total %d unseen %d err %v, want 2/1", total, unseen, err)
		}
		total, _, err = storage.NotificationCounts(0, 0)
		if err != nil || total != 2 {
			t.Fatalf("got total %d err %v, want 2 across all services", total, err)
		}
	})
}

func TestStorage_TransactionRollsBack(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		boom := errors.New("abort")
		err := storage.Transaction(func(tx types.Storage) error {
			if _, err := tx.PutRecord(&types.StoredRecord{Kind: types.KindNotification}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("got %v, want the body error", err)
		}
		total, _, err := storage.NotificationCounts(0, 0)
		if err != nil || total != 0 {
			t.Fatalf("got %d records err %v, want rollback", total, err)
		}
	})
}

func TestStorage_TransactionCommits(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		var first, second int64
		err := storage.Transaction(func(tx types.Storage) error {
			var err error
			if first, err = tx.PutRecord(&types.StoredRecord{Kind: types.KindNotification}); err != nil {
				return err
			}
			second, err = tx.PutRecord(&types.StoredRecord{Kind: types.KindNotification})
			return err
		})
		if err != nil {
			t.Fatalf("transaction failed. %v", err)
		}
		if first == 0 || second == 0 || first == second {
			t.Fatalf("got ids %d and %d", first, second)
		}
		total, _, _ := storage.NotificationCounts(0, 0)
		if total != 2 {
			t.Fatalf("got %d records, want both writes committed", total)
		}
	})
}

func TestStorage_MediatorEntries(t *testing.T) {
	eachStorage(t, func(t *testing.T, storage types.Storage) {
		mediator, err := storage.PutRecord(&types.StoredRecord{
			Kind:        types.KindForeignService,
			Flags:       types.FlagMediator,
			GlobalIdent: []byte("mediator"),
		})
		if err != nil {
			t.Fatalf("seed failed. %v", err)
		}
		if _, err := storage.PutRecord(&types.StoredRecord{
			Kind:        types.KindForeignService,
			GlobalIdent: []byte("plain"),
		}); err != nil {
			t.Fatalf("seed failed. %v", err)
		}

		entries, err := storage.MediatorEntries()
		if err != nil || len(entries) != 1 || entries[0].ID != mediator {
			t.Fatalf("got %v err %v, want only the mediator", entries, err)
		}
	})
}

func TestMemoryNotifier(t *testing.T) {
	notifier := NewMemoryNotifier()
	notifier.Surface(1)
	notifier.Surface(2)
	notifier.Cancel(1)

	active := notifier.Active()
	if len(active) != 1 || active[0] != 2 {
		t.Fatalf("got %v, want only 2", active)
	}
}
