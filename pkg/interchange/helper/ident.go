package helper

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// DocumentStorageIdent derives the storage identifier a document or
// cached result is filed under. The derivation is deterministic so
// the same identifier is recomputed identically across restarts to
// find existing records. The document UUID participates only when
// present: service-wide data is stored under the identity alone.
func DocumentStorageIdent(svcIdent types.ServiceIdentity, docUuid uuid.UUID) []byte {
	h := sha256.New()
	h.Write(svcIdent)
	if docUuid != uuid.Nil {
		h.Write(docUuid[:])
	}
	return h.Sum(nil)
}

// IdentKey encodes a storage identifier for use as a map key.
func IdentKey(ident []byte) string {
	return hex.EncodeToString(ident)
}
