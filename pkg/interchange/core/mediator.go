package core

import (
	"bytes"

	"github.com/jabolina/go-interchange/pkg/interchange/network"
	"github.com/jabolina/go-interchange/pkg/interchange/types"
)

// Builds the list of reachable intermediary services out of the
// stored records carrying the mediator capability flag.
type MediatorDirectory struct {
	storage types.Storage

	// Directory logger.
	log types.Logger
}

func NewMediatorDirectory(storage types.Storage, log types.Logger) *MediatorDirectory {
	return &MediatorDirectory{storage: storage, log: log}
}

// ReachableServices lists the mediator entries that can actually be
// reached: the pool service-identifier must agree with the record's
// global ident, the pool configuration must resolve to a supported
// endpoint. Entries failing either check are skipped, duplicates of
// the same ident collapse to the first occurrence.
func (m *MediatorDirectory) ReachableServices() ([]*types.StoredRecord, error) {
	entries, err := m.storage.MediatorEntries()
	if err != nil {
		return nil, &types.StorageError{Op: "listing mediator entries", Cause: err}
	}

	var reachable []*types.StoredRecord
	seen := make(map[string]bool)
	for _, entry := range entries {
		ident := types.ServiceIdentity(entry.GlobalIdent)
		if ident.Empty() || seen[ident.String()] {
			continue
		}
		if poolIdent := entry.Pool.Get(types.TagSvcIdent); len(poolIdent) > 0 &&
			!bytes.Equal(poolIdent, entry.GlobalIdent) {
			m.log.Warnf("mediator %d pool ident disagrees with its global ident, skipped", entry.ID)
			continue
		}
		cfg, err := types.ServiceConfigFromPool(&entry.Pool)
		if err != nil {
			m.log.Debugf("mediator %d carries no usable configuration. %v", entry.ID, err)
			continue
		}
		if _, err := network.ResolveEndpoint(cfg); err != nil {
			m.log.Debugf("mediator %d endpoint rejected. %v", entry.ID, err)
			continue
		}
		seen[ident.String()] = true
		reachable = append(reachable, entry)
	}
	return reachable, nil
}
