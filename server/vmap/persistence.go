package vmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/golang/snappy"
)

// LevelDBInstanceSaveStore is the concrete InstanceSaveStore named in §6: an
// embedded key-value store of InstanceSaveRecords keyed by
// "owner_key|map_id", snappy-compressed before Put.
type LevelDBInstanceSaveStore struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDBInstanceSaveStore opens (creating if absent) a goleveldb
// database at path for instance-save persistence.
func OpenLevelDBInstanceSaveStore(path string) (*LevelDBInstanceSaveStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("vmap: open instance save store: %w", err)
	}
	return &LevelDBInstanceSaveStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *LevelDBInstanceSaveStore) Close() error {
	return s.db.Close()
}

func saveKey(ownerKey string, mapID uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString(ownerKey)
	buf.WriteByte('|')
	_ = binary.Write(&buf, binary.BigEndian, mapID)
	return buf.Bytes()
}

// Lookup implements InstanceSaveStore.
func (s *LevelDBInstanceSaveStore) Lookup(ownerKey string, mapID uint32) (InstanceSaveRecord, bool) {
	s.mu.Lock()
	raw, err := s.db.Get(saveKey(ownerKey, mapID), nil)
	s.mu.Unlock()
	if err != nil {
		if !errors.Is(err, leveldb.ErrNotFound) {
			return InstanceSaveRecord{}, false
		}
		return InstanceSaveRecord{}, false
	}

	decoded, err := snappy.Decode(nil, raw)
	if err != nil {
		return InstanceSaveRecord{}, false
	}
	rec, ok := decodeRecord(decoded)
	if !ok {
		return InstanceSaveRecord{}, false
	}
	return rec, true
}

// Put persists rec, compressed with snappy. Writing saves is an
// administrative/out-of-band operation in this core (the scheduling
// component only ever reads saves via Lookup during create_instance); Put
// exists for the owning server process (e.g. on encounter completion) to
// record a new save.
func (s *LevelDBInstanceSaveStore) Put(rec InstanceSaveRecord) error {
	encoded := snappy.Encode(nil, encodeRecord(rec))
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Put(saveKey(rec.OwnerKey, rec.MapID), encoded, nil)
}

func encodeRecord(rec InstanceSaveRecord) []byte {
	var buf bytes.Buffer
	ownerLen := uint32(len(rec.OwnerKey))
	_ = binary.Write(&buf, binary.BigEndian, ownerLen)
	buf.WriteString(rec.OwnerKey)
	_ = binary.Write(&buf, binary.BigEndian, rec.MapID)
	_ = binary.Write(&buf, binary.BigEndian, rec.InstanceID)
	buf.WriteByte(byte(rec.Difficulty))
	return buf.Bytes()
}

func decodeRecord(data []byte) (InstanceSaveRecord, bool) {
	r := bytes.NewReader(data)
	var ownerLen uint32
	if err := binary.Read(r, binary.BigEndian, &ownerLen); err != nil {
		return InstanceSaveRecord{}, false
	}
	ownerBytes := make([]byte, ownerLen)
	if _, err := r.Read(ownerBytes); err != nil {
		return InstanceSaveRecord{}, false
	}
	var rec InstanceSaveRecord
	rec.OwnerKey = string(ownerBytes)
	if err := binary.Read(r, binary.BigEndian, &rec.MapID); err != nil {
		return InstanceSaveRecord{}, false
	}
	if err := binary.Read(r, binary.BigEndian, &rec.InstanceID); err != nil {
		return InstanceSaveRecord{}, false
	}
	difficulty, err := r.ReadByte()
	if err != nil {
		return InstanceSaveRecord{}, false
	}
	rec.Difficulty = Difficulty(difficulty)
	return rec, true
}
