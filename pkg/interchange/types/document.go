package types

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// Header of a business document. Embedded by Document so the wire
// form stays flat, with the uuid at the top level.
type DocumentHeader struct {
	// Local store id, zero before the first persist.
	ID int64 `json:"id,omitempty"`

	// Stable document identity across client and service.
	Uuid uuid.UUID `json:"uuid"`

	// Human readable document code.
	Code string `json:"code,omitempty"`

	// Creation moment, epoch milliseconds.
	CreationTime int64 `json:"crtm,omitempty"`

	// Document moment, epoch milliseconds.
	Time int64 `json:"tm,omitempty"`

	// Counterparty reference on the service side.
	ClientID int64 `json:"cliid,omitempty"`

	// Current lifecycle status.
	Status DocStatus `json:"status,omitempty"`

	Memo string `json:"memo,omitempty"`
}

// A goods transfer line of a document.
type TransferItem struct {
	RowIdx  int     `json:"rowidx,omitempty"`
	GoodsID int64   `json:"goodsid"`
	UnitID  int64   `json:"unitid,omitempty"`
	Qtty    float64 `json:"qtty"`
	Price   float64 `json:"price,omitempty"`
}

// A booking (backorder) line of a document.
type BookingItem struct {
	RowIdx               int   `json:"rowidx,omitempty"`
	PrcID                int64 `json:"prcid"`
	GoodsID              int64 `json:"goodsid,omitempty"`
	ReqTime              int64 `json:"reqtime,omitempty"`
	EstimatedDurationSec int64 `json:"estimateddurationsec,omitempty"`
}

// A business document exchanged with a service. A document is
// transmittable only when it carries a header and at least one
// non-empty line list.
type Document struct {
	*DocumentHeader
	TiList []TransferItem `json:"ti_list,omitempty"`
	BkList []BookingItem  `json:"bk_list,omitempty"`
}

// Transmittable reports whether there is anything to send at all.
func (d *Document) Transmittable() bool {
	if d == nil || d.DocumentHeader == nil {
		return false
	}
	return len(d.TiList) > 0 || len(d.BkList) > 0
}

// AfterTransmitStatus is the lifecycle status the local copy should
// transition to once the remote peer acknowledges receipt.
func (d *Document) AfterTransmitStatus() DocStatus {
	switch d.Status {
	case DocStatusUndef, DocStatusDraft:
		return DocStatusWaitForApproval
	}
	return d.Status
}

// Records what local status a document should transition to once
// the remote acknowledges receipt.
type DocumentRequestEntry struct {
	DocUuid             uuid.UUID
	DocID               int64
	AfterTransmitStatus DocStatus
}

// The mutation classes the client permitted on a posted document.
// Transmitted textually inside the declaration so the remote peer
// knows exactly which parts it may touch, minimizing the risk of
// conflicting concurrent edits by other clients.
type ActionFlags uint

const (
	ActionDocStatus ActionFlags = 1 << iota
	ActionDocAcceptance
	ActionDocSettings
	ActionGoodsMarks
)

var actionTokens = []struct {
	flag ActionFlags
	text string
}{
	{ActionDocStatus, "docstatus"},
	{ActionDocAcceptance, "docacceptance"},
	{ActionDocSettings, "docsettings"},
	{ActionGoodsMarks, "goodsmarks"},
}

// String encodes the flag set as a comma separated token list.
func (f ActionFlags) String() string {
	var tokens []string
	for _, t := range actionTokens {
		if f&t.flag != 0 {
			tokens = append(tokens, t.text)
		}
	}
	return strings.Join(tokens, ",")
}

// ParseActionFlags is the inverse of ActionFlags.String, unknown
// tokens are ignored.
func ParseActionFlags(s string) ActionFlags {
	var flags ActionFlags
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		for _, t := range actionTokens {
			if token == t.text {
				flags |= t.flag
			}
		}
	}
	return flags
}

// Closed set of presentation routes a declaration can select.
// Decoupled from any presentation framework, consumers register
// handlers per variant on the router.
type DisplayMethod int

const (
	DisplayGeneric DisplayMethod = iota
	DisplayGrid
	DisplayOrderPrereq
	DisplayIndoorSvcPrereq
	DisplayAttendancePrereq
	DisplayIncomingList
)

// ParseDisplayMethod maps the declaration display-method string to
// its variant. Unrecognized values fall back to the generic route.
func ParseDisplayMethod(s string) DisplayMethod {
	switch strings.ToLower(s) {
	case "grid":
		return DisplayGrid
	case "orderprereq":
		return DisplayOrderPrereq
	case "indoorsvcprereq":
		return DisplayIndoorSvcPrereq
	case "attendanceprereq":
		return DisplayAttendancePrereq
	case "incominglistorder", "incominglistccheck", "incominglisttsess":
		return DisplayIncomingList
	}
	return DisplayGeneric
}

// Metadata describing how a received document or result payload
// should be interpreted and presented.
type Declaration struct {
	Type          string `json:"type"`
	Format        string `json:"format"`
	Time          string `json:"time,omitempty"`
	ActionFlags   string `json:"actionflags,omitempty"`
	DisplayMethod string `json:"displaymethod,omitempty"`

	// Validity period of the declared result in seconds, zero when
	// the service did not constrain it.
	ExpiryPeriodSec int64 `json:"expirtimesec,omitempty"`
}

// Method resolves the declaration display method variant.
func (d *Declaration) Method() DisplayMethod {
	if d == nil {
		return DisplayGeneric
	}
	return ParseDisplayMethod(d.DisplayMethod)
}

// DeclarationFromPool parses the declaration payload out of a
// record pool, nil when the pool carries none or it is malformed.
func DeclarationFromPool(pool *TaggedBlobPool) *Declaration {
	raw := pool.Get(TagDocDeclaration)
	if len(raw) == 0 {
		return nil
	}
	var decl Declaration
	if err := json.Unmarshal(raw, &decl); err != nil {
		return nil
	}
	return &decl
}
