package core

// storage.go – the column-family store of §2 item 2 / §6 "Persisted state
// layout": one family per entity, versioned by topoheight via the keyed
// suffix convention `entity_key || topoheight_be`; point-in-time read is
// "greatest key <= entity_key||desired_topo" (§9). The teacher's
// core/storage.go wires an on-disk LRU cache behind an IPFS gateway; we keep
// its structuring idiom (a small thread-safe struct wrapping a pluggable
// backend, wired through NewStorage, logged with logrus, with a secondary
// zap logger for the compaction/prune pass) but point it at an in-process
// sorted-map engine instead of a content-addressed gateway, since the core's
// storage is local authoritative state, not a CDN cache.

import (
	"encoding/binary"
	"errors"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Family names mirror §6's column-family list exactly.
type Family string

const (
	FamilyAccounts           Family = "Accounts"
	FamilyBalances           Family = "Balances"
	FamilyNonces             Family = "Nonces"
	FamilyContracts          Family = "Contracts"
	FamilyContractAssets     Family = "ContractAssets"
	FamilyContractStores     Family = "ContractStores"
	FamilyContractExecutions Family = "ContractsExecutions"
	FamilyEscrows            Family = "Escrows"
	FamilyArbiters           Family = "Arbiters"
	FamilyKYC                Family = "KYC"
	FamilyTNS                Family = "TNS"
	FamilyScheduledExec      Family = "ScheduledExec"
	FamilyBlocksByHash       Family = "BlocksByHash"
	FamilyBlocksByTopoheight Family = "BlocksByTopoheight"
	FamilyMempool            Family = "Mempool"
	FamilyDAGTips            Family = "DAGTips"
	FamilyAssets             Family = "Assets"
	FamilyAssetsSupply       Family = "AssetsSupply"
	FamilyEnergyRecords      Family = "EnergyRecords"
	FamilyUnoBalances        Family = "UnoBalances"
	FamilyAgents             Family = "Agents"
	FamilyEphemeralMessages  Family = "EphemeralMessages"
)

// versionedKey builds the `entity_key || topoheight_be` convention of §9.
func versionedKey(entityKey []byte, topo Topoheight) []byte {
	out := make([]byte, len(entityKey)+8)
	copy(out, entityKey)
	binary.BigEndian.PutUint64(out[len(entityKey):], topo)
	return out
}

// columnFamily is an in-memory sorted map keyed by the versioned-key
// convention. A real deployment would back this with an LSM engine (§9
// notes this maps cleanly onto one); the in-process sorted slice here
// keeps the core's test suite hermetic while preserving the exact
// point-in-time-read semantics a real engine must provide.
type columnFamily struct {
	mu   sync.RWMutex
	keys [][]byte // kept sorted
	vals [][]byte
}

func newColumnFamily() *columnFamily {
	return &columnFamily{}
}

func (cf *columnFamily) put(key, val []byte) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	i := sort.Search(len(cf.keys), func(i int) bool {
		return compareBytes(cf.keys[i], key) >= 0
	})
	if i < len(cf.keys) && compareBytes(cf.keys[i], key) == 0 {
		cf.vals[i] = val
		return
	}
	cf.keys = append(cf.keys, nil)
	cf.vals = append(cf.vals, nil)
	copy(cf.keys[i+1:], cf.keys[i:])
	copy(cf.vals[i+1:], cf.vals[i:])
	cf.keys[i] = key
	cf.vals[i] = val
}

func (cf *columnFamily) delete(key []byte) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	i := sort.Search(len(cf.keys), func(i int) bool {
		return compareBytes(cf.keys[i], key) >= 0
	})
	if i < len(cf.keys) && compareBytes(cf.keys[i], key) == 0 {
		cf.keys = append(cf.keys[:i], cf.keys[i+1:]...)
		cf.vals = append(cf.vals[:i], cf.vals[i+1:]...)
	}
}

// getLatest implements "greatest key <= upperBound", counting only versions
// of the same entity key (upperBound minus its 8-byte topoheight suffix).
func (cf *columnFamily) getLatest(upperBound []byte) ([]byte, bool) {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	i := sort.Search(len(cf.keys), func(i int) bool {
		return compareBytes(cf.keys[i], upperBound) > 0
	})
	entity := upperBound[:len(upperBound)-8]
	for j := i - 1; j >= 0 && compareBytes(cf.keys[j], entity) >= 0; j-- {
		if len(cf.keys[j]) == len(upperBound) && hasPrefix(cf.keys[j], entity) {
			return cf.vals[j], true
		}
	}
	return nil, false
}

func (cf *columnFamily) scanPrefix(prefix []byte) [][2][]byte {
	cf.mu.RLock()
	defer cf.mu.RUnlock()
	var out [][2][]byte
	for i, k := range cf.keys {
		if hasPrefix(k, prefix) {
			out = append(out, [2][]byte{k, cf.vals[i]})
		}
	}
	return out
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Storage is the single-writer/many-reader keyed store backing the DAG
// (§5). A sync.RWMutex at this layer guards family creation; each family's
// own mutex guards entries so readers of different families never block
// each other.
type Storage struct {
	logger  *logrus.Logger
	zlogger *zap.Logger

	mu        sync.RWMutex
	families  map[Family]*columnFamily
}

// NewStorage wires a Storage instance over in-process column families.
func NewStorage(lg *logrus.Logger) (*Storage, error) {
	if lg == nil {
		return nil, errors.New("storage: nil logger")
	}
	zl, err := zap.NewProduction()
	if err != nil {
		zl = zap.NewNop()
	}
	s := &Storage{
		logger:   lg,
		zlogger:  zl,
		families: make(map[Family]*columnFamily),
	}
	lg.Info("storage: initialised in-process column families")
	return s, nil
}

func (s *Storage) family(f Family) *columnFamily {
	s.mu.RLock()
	cf, ok := s.families[f]
	s.mu.RUnlock()
	if ok {
		return cf
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cf, ok := s.families[f]; ok {
		return cf
	}
	cf = newColumnFamily()
	s.families[f] = cf
	return cf
}

// PutVersioned stores val under entityKey at topoheight topo.
func (s *Storage) PutVersioned(f Family, entityKey []byte, topo Topoheight, val []byte) {
	s.family(f).put(versionedKey(entityKey, topo), val)
}

// GetAt performs the §9 point-in-time read: the value at the greatest
// topoheight <= desiredTopo.
func (s *Storage) GetAt(f Family, entityKey []byte, desiredTopo Topoheight) ([]byte, bool) {
	upper := versionedKey(entityKey, desiredTopo)
	return s.family(f).getLatest(upper)
}

// DeleteAt removes the exact versioned entry (used by the escrow and
// energy-record deletion paths that don't need historical retention).
func (s *Storage) DeleteAt(f Family, entityKey []byte, topo Topoheight) {
	s.family(f).delete(versionedKey(entityKey, topo))
}

// ScanPrefix returns every versioned entry whose entity-key portion matches
// prefix, across all topoheights. Callers that need only the latest value
// per entity should de-duplicate on the entity-key portion themselves.
func (s *Storage) ScanPrefix(f Family, prefix []byte) [][2][]byte {
	return s.family(f).scanPrefix(prefix)
}

// encodeU64/decodeU64 are the fixed-width codec chainstate.go uses to park
// nonces and balances in Storage: big-endian so lexicographic byte order
// (which versionedKey relies on for point-in-time reads) also sorts values.
func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func decodeU64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// balanceKey is the FamilyBalances entity key for one (account, asset) pair.
func balanceKey(pub PubKey, asset AssetID) []byte {
	out := make([]byte, 0, len(pub)+len(asset))
	out = append(out, pub[:]...)
	out = append(out, asset[:]...)
	return out
}

// energyRecordKey is the FamilyEnergyRecords entity key for one freeze
// record: an owner can hold several, so the unlock topoheight disambiguates.
func energyRecordKey(f *EnergyFreeze) []byte {
	out := make([]byte, 0, len(f.Owner)+8)
	out = append(out, f.Owner[:]...)
	out = append(out, encodeU64(f.UnlockTopoheight)...)
	return out
}

// Compact is a no-op placeholder for the prune pass a real LSM-backed
// deployment would run; it exists so callers can log a consistent
// lifecycle event via the secondary zap logger, matching the teacher's
// storage.go dual-logger convention.
func (s *Storage) Compact() {
	s.zlogger.Info("storage: compaction pass complete")
}
