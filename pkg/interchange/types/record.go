package types

import (
	"encoding/base64"
	"encoding/json"
	"sort"
)

// An ordered mapping from small integer tags to byte payloads,
// attached to every stored record. Insertion order is irrelevant,
// entries are kept sorted by tag so serialization is deterministic.
type TaggedBlobPool struct {
	entries []poolEntry
}

type poolEntry struct {
	Tag  BlobTag `json:"tag"`
	Data []byte  `json:"data"`
}

// Put stores the payload under the tag, replacing any previous
// payload for the same tag. Empty payloads are ignored.
func (p *TaggedBlobPool) Put(tag BlobTag, data []byte) {
	if len(data) == 0 {
		return
	}
	for i := range p.entries {
		if p.entries[i].Tag == tag {
			p.entries[i].Data = data
			return
		}
	}
	p.entries = append(p.entries, poolEntry{Tag: tag, Data: data})
	sort.Slice(p.entries, func(i, j int) bool {
		return p.entries[i].Tag < p.entries[j].Tag
	})
}

// Get returns the payload stored under the tag, nil when absent.
func (p *TaggedBlobPool) Get(tag BlobTag) []byte {
	for i := range p.entries {
		if p.entries[i].Tag == tag {
			return p.entries[i].Data
		}
	}
	return nil
}

// Tags lists the tags present on the pool, in ascending order.
func (p *TaggedBlobPool) Tags() []BlobTag {
	tags := make([]BlobTag, 0, len(p.entries))
	for i := range p.entries {
		tags = append(tags, p.entries[i].Tag)
	}
	return tags
}

// Clone copies the pool so a stored record can be handed out
// without sharing the underlying slices.
func (p *TaggedBlobPool) Clone() TaggedBlobPool {
	c := TaggedBlobPool{entries: make([]poolEntry, len(p.entries))}
	for i := range p.entries {
		data := make([]byte, len(p.entries[i].Data))
		copy(data, p.entries[i].Data)
		c.entries[i] = poolEntry{Tag: p.entries[i].Tag, Data: data}
	}
	return c
}

type wireEntry struct {
	Tag  BlobTag `json:"tag"`
	Data string  `json:"data"`
}

// MarshalJSON serializes the pool as an ordered entry list with
// base64 payloads.
func (p TaggedBlobPool) MarshalJSON() ([]byte, error) {
	wire := make([]wireEntry, 0, len(p.entries))
	for i := range p.entries {
		wire = append(wire, wireEntry{
			Tag:  p.entries[i].Tag,
			Data: base64.StdEncoding.EncodeToString(p.entries[i].Data),
		})
	}
	return json.Marshal(wire)
}

func (p *TaggedBlobPool) UnmarshalJSON(data []byte) error {
	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.entries = nil
	for _, w := range wire {
		raw, err := base64.StdEncoding.DecodeString(w.Data)
		if err != nil {
			return err
		}
		p.Put(w.Tag, raw)
	}
	return nil
}

// Represents any persisted unit: a service identity, a document or
// a cached command result. Records are created on first successful
// persist and mutated in place, logical expiration and flag
// transitions replace deletion.
type StoredRecord struct {
	// Store assigned identifier, unique across all records.
	ID int64

	// Which kind of unit this record represents.
	Kind RecordKind

	// Document type class, meaningful for KindDocument records.
	DocType DocType

	// Travel direction the document was persisted with.
	Direction Direction

	// Lifecycle status plus capability and transient markers.
	Flags RecordFlag

	// Unix epoch milliseconds of the last write.
	Timestamp int64

	// Absolute epoch milliseconds after which the record must not
	// be reused. Zero means the record never expires.
	Expiration int64

	// Global binary identifier: the service identity for peer
	// entries, the derived document storage ident for documents.
	GlobalIdent []byte

	// Owning service record id, zero for peer entries.
	ServiceID int64

	// Tagged payloads attached to the record.
	Pool TaggedBlobPool
}

// Usable reports whether the record is still valid at the given
// epoch milliseconds. A record is usable only while now is before
// the expiration, absent expiration means perpetually valid.
func (r *StoredRecord) Usable(nowMs int64) bool {
	return r.Expiration == 0 || nowMs < r.Expiration
}

// InTransit reports whether the record still awaits a terminal
// response from the remote peer.
func (r *StoredRecord) InTransit() bool {
	return r.Flags&FlagInTransit != 0
}

// MostRecentRecord selects the record with the greatest timestamp.
// More than one candidate should not normally happen, when it does
// the most recent wins and the others are ignored.
func MostRecentRecord(records []*StoredRecord) *StoredRecord {
	var recent *StoredRecord
	for _, r := range records {
		if r == nil {
			continue
		}
		if recent == nil || r.Timestamp > recent.Timestamp {
			recent = r
		}
	}
	return recent
}
