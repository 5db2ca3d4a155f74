package definition

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	kind         INTEGER NOT NULL,
	doc_type     INTEGER NOT NULL DEFAULT 0,
	direction    INTEGER NOT NULL DEFAULT 0,
	flags        INTEGER NOT NULL DEFAULT 0,
	timestamp    INTEGER NOT NULL,
	expiration   INTEGER NOT NULL DEFAULT 0,
	global_ident BLOB,
	service_id   INTEGER NOT NULL DEFAULT 0,
	pool         BLOB
);
CREATE INDEX IF NOT EXISTS idx_records_ident ON records (kind, global_ident);
CREATE INDEX IF NOT EXISTS idx_records_doc ON records (kind, doc_type, global_ident);

CREATE TABLE IF NOT EXISTS request_entries (
	doc_id       INTEGER PRIMARY KEY,
	doc_uuid     TEXT NOT NULL,
	after_status INTEGER NOT NULL
);
`

const recordColumns = "id, kind, doc_type, direction, flags, timestamp, expiration, global_ident, service_id, pool"

// Subset of database/sql shared by *sql.DB and *sql.Tx, so the same
// query code serves direct access and open transactions.
type querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Durable record store on a single SQLite file. The driver connects
// in WAL mode with a busy timeout so concurrent worker routines
// block briefly instead of failing on a locked database.
type SqliteStorage struct {
	db *sql.DB
	sqliteView
}

// View over one querier, either the database or an open transaction.
type sqliteView struct {
	q     querier
	clock func() time.Time
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, &types.StorageError{Op: "opening database", Cause: err}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Op: "applying schema", Cause: err}
	}
	return &SqliteStorage{
		db:         db,
		sqliteView: sqliteView{q: db, clock: time.Now},
	}, nil
}

// Transaction runs fn inside one database transaction, committing
// only when fn returns nil.
func (s *SqliteStorage) Transaction(fn func(types.Storage) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &types.StorageError{Op: "opening transaction", Cause: err}
	}
	view := &sqliteTxView{sqliteView{q: tx, clock: s.clock}}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &types.StorageError{Op: "committing transaction", Cause: err}
	}
	return nil
}

func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

// Storage view over an open transaction. A nested Transaction joins
// the enclosing one.
type sqliteTxView struct {
	sqliteView
}

func (t *sqliteTxView) Transaction(fn func(types.Storage) error) error {
	return fn(t)
}

func (v *sqliteView) OwnPeerEntry() (*types.StoredRecord, error) {
	return v.queryOne("SELECT "+recordColumns+" FROM records WHERE kind = ? LIMIT 1",
		types.KindOwnPeer)
}

func (v *sqliteView) SearchGlobalIdentEntry(kind types.RecordKind, ident []byte) (*types.StoredRecord, error) {
	return v.queryOne("SELECT "+recordColumns+" FROM records WHERE kind = ? AND global_ident = ? LIMIT 1",
		kind, ident)
}

func (v *sqliteView) Record(id int64) (*types.StoredRecord, error) {
	return v.queryOne("SELECT "+recordColumns+" FROM records WHERE id = ?", id)
}

func (v *sqliteView) PutRecord(rec *types.StoredRecord) (int64, error) {
	if rec == nil {
		return 0, types.ErrInvalidArgument
	}
	pool, err := json.Marshal(rec.Pool)
	if err != nil {
		return 0, &types.SerializationError{Cause: err}
	}
	now := v.nowMs()
	if rec.ID == 0 {
		res, err := v.q.Exec(
			"INSERT INTO records (kind, doc_type, direction, flags, timestamp, expiration, global_ident, service_id, pool) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			rec.Kind, rec.DocType, rec.Direction, rec.Flags, now, rec.Expiration,
			rec.GlobalIdent, rec.ServiceID, pool)
		if err != nil {
			return 0, &types.StorageError{Op: "inserting record", Cause: err}
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, &types.StorageError{Op: "inserting record", Cause: err}
		}
		rec.ID = id
		rec.Timestamp = now
		return id, nil
	}
	_, err = v.q.Exec(
		"UPDATE records SET kind = ?, doc_type = ?, direction = ?, flags = ?, timestamp = ?, expiration = ?, global_ident = ?, service_id = ?, pool = ? WHERE id = ?",
		rec.Kind, rec.DocType, rec.Direction, rec.Flags, now, rec.Expiration,
		rec.GlobalIdent, rec.ServiceID, pool, rec.ID)
	if err != nil {
		return 0, &types.StorageError{Op: "rewriting record", Cause: err}
	}
	rec.Timestamp = now
	return rec.ID, nil
}

func (v *sqliteView) PutDocument(dir types.Direction, docType types.DocType, flags types.RecordFlag,
	expiration int64, ident []byte, svcID int64, pool types.TaggedBlobPool) (int64, error) {
	if docType == types.DocTypeUndef || len(ident) == 0 {
		return 0, types.ErrInvalidArgument
	}
	rec := &types.StoredRecord{
		Kind:        types.KindDocument,
		DocType:     docType,
		Direction:   dir,
		Flags:       flags,
		Expiration:  expiration,
		GlobalIdent: ident,
		ServiceID:   svcID,
		Pool:        pool,
	}
	row := v.q.QueryRow(
		"SELECT id FROM records WHERE kind = ? AND doc_type = ? AND direction = ? AND global_ident = ? LIMIT 1",
		types.KindDocument, docType, dir, ident)
	var existing int64
	switch err := row.Scan(&existing); err {
	case nil:
		rec.ID = existing
	case sql.ErrNoRows:
	default:
		return 0, &types.StorageError{Op: "locating document", Cause: err}
	}
	return v.PutRecord(rec)
}

func (v *sqliteView) DocumentsByIdent(docType types.DocType, ident []byte) ([]*types.StoredRecord, error) {
	rows, err := v.q.Query(
		"SELECT "+recordColumns+" FROM records WHERE kind = ? AND doc_type = ? AND global_ident = ?",
		types.KindDocument, docType, ident)
	if err != nil {
		return nil, &types.StorageError{Op: "listing documents", Cause: err}
	}
	defer rows.Close()
	var records []*types.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (v *sqliteView) SetRecordFlags(id int64, flags types.RecordFlag) error {
	res, err := v.q.Exec("UPDATE records SET flags = ? WHERE id = ?", flags, id)
	if err != nil {
		return &types.StorageError{Op: "rewriting flags", Cause: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return &types.StorageError{Op: "rewriting flags", Cause: err}
	}
	if affected == 0 {
		return types.ErrInvalidArgument
	}
	return nil
}

func (v *sqliteView) InTransitDocuments() ([]*types.StoredRecord, error) {
	rows, err := v.q.Query(
		"SELECT "+recordColumns+" FROM records WHERE kind = ? AND direction = ? AND (flags & ?) != 0",
		types.KindDocument, types.Outgoing, types.FlagInTransit)
	if err != nil {
		return nil, &types.StorageError{Op: "listing in-transit documents", Cause: err}
	}
	defer rows.Close()
	var records []*types.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (v *sqliteView) MediatorEntries() ([]*types.StoredRecord, error) {
	rows, err := v.q.Query(
		"SELECT "+recordColumns+" FROM records WHERE kind = ? AND (flags & ?) != 0",
		types.KindForeignService, types.FlagMediator)
	if err != nil {
		return nil, &types.StorageError{Op: "listing mediators", Cause: err}
	}
	defer rows.Close()
	var entries []*types.StoredRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, rec)
	}
	return entries, rows.Err()
}

func (v *sqliteView) PutRequestEntry(entry types.DocumentRequestEntry) error {
	if entry.DocID == 0 {
		return types.ErrInvalidArgument
	}
	_, err := v.q.Exec(
		"INSERT OR REPLACE INTO request_entries (doc_id, doc_uuid, after_status) VALUES (?, ?, ?)",
		entry.DocID, entry.DocUuid.String(), entry.AfterTransmitStatus)
	if err != nil {
		return &types.StorageError{Op: "registering request entry", Cause: err}
	}
	return nil
}

func (v *sqliteView) TakeRequestEntry(docID int64) (*types.DocumentRequestEntry, error) {
	row := v.q.QueryRow("SELECT doc_uuid, after_status FROM request_entries WHERE doc_id = ?", docID)
	var rawUuid string
	var entry types.DocumentRequestEntry
	switch err := row.Scan(&rawUuid, &entry.AfterTransmitStatus); err {
	case nil:
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, &types.StorageError{Op: "loading request entry", Cause: err}
	}
	entry.DocID = docID
	if err := entry.DocUuid.UnmarshalText([]byte(rawUuid)); err != nil {
		return nil, &types.SerializationError{Cause: err}
	}
	if _, err := v.q.Exec("DELETE FROM request_entries WHERE doc_id = ?", docID); err != nil {
		return nil, &types.StorageError{Op: "removing request entry", Cause: err}
	}
	return &entry, nil
}

func (v *sqliteView) Notification(id int64) (*types.StoredRecord, error) {
	return v.queryOne("SELECT "+recordColumns+" FROM records WHERE id = ? AND kind = ?",
		id, types.KindNotification)
}

func (v *sqliteView) MarkNotificationSeen(id int64) (bool, error) {
	res, err := v.q.Exec("UPDATE records SET flags = flags | ? WHERE id = ? AND kind = ?",
		types.FlagSeen, id, types.KindNotification)
	if err != nil {
		return false, &types.StorageError{Op: "marking notification", Cause: err}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &types.StorageError{Op: "marking notification", Cause: err}
	}
	return affected > 0, nil
}

func (v *sqliteView) NotificationCounts(svcID int64, sinceMs int64) (int, int, error) {
	row := v.q.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN (flags & ?) = 0 THEN 1 ELSE 0 END), 0) FROM records WHERE kind = ? AND (? = 0 OR service_id = ?) AND (? = 0 OR timestamp >= ?)",
		types.FlagSeen, types.KindNotification, svcID, svcID, sinceMs, sinceMs)
	var total, unseen int
	if err := row.Scan(&total, &unseen); err != nil {
		return 0, 0, &types.StorageError{Op: "counting notifications", Cause: err}
	}
	return total, unseen, nil
}

func (v *sqliteView) queryOne(query string, args ...interface{}) (*types.StoredRecord, error) {
	rows, err := v.q.Query(query, args...)
	if err != nil {
		return nil, &types.StorageError{Op: "loading record", Cause: err}
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

func (v *sqliteView) nowMs() int64 {
	return v.clock().UnixNano() / int64(time.Millisecond)
}

func scanRecord(rows *sql.Rows) (*types.StoredRecord, error) {
	var rec types.StoredRecord
	var pool []byte
	err := rows.Scan(&rec.ID, &rec.Kind, &rec.DocType, &rec.Direction, &rec.Flags,
		&rec.Timestamp, &rec.Expiration, &rec.GlobalIdent, &rec.ServiceID, &pool)
	if err != nil {
		return nil, &types.StorageError{Op: "reading record", Cause: err}
	}
	if len(pool) > 0 {
		if err := json.Unmarshal(pool, &rec.Pool); err != nil {
			return nil, &types.SerializationError{Cause: err}
		}
	}
	return &rec, nil
}
