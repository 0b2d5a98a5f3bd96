package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
)

// Batch is an atomic write buffer. All operations are applied together via
// Write() or discarded together on error, preventing partial commits across
// the block/cert/height/message key spaces PutBlock writes to.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// DB is the generic key-value store BlockStore is built on.
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	NewIterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Iterator walks the key-value pairs under one of BlockStore's four key
// spaces (block/, height/, cert/, msg/) in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// LevelDB implements DB using LevelDB, grounded on teacher's storage/leveldb.go.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB opens (or creates) a LevelDB database at path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	val, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, core.ErrNotFound
	}
	return val, err
}

func (l *LevelDB) Set(key, value []byte) error {
	return l.db.Put(key, value, nil)
}

func (l *LevelDB) Delete(key []byte) error {
	return l.db.Delete(key, nil)
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return l.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }
func (b *levelBatch) Reset()                { b.batch.Reset() }

// ---- BlockStore implementation (spec §4.G, §6 key spaces) ----

const (
	prefixBlock  = "block/"
	prefixHeight = "height/"
	prefixCert   = "cert/"
	prefixMsg    = "msg/"
	keyLastHash  = "meta/last_hash"
)

// BlockStore persists certified blocks, their certificates, and (optionally)
// original client messages, grounded on teacher's StateDB.Commit atomic
// batch discipline (storage/statedb.go).
type BlockStore struct {
	db DB
}

// NewBlockStore wraps a DB as a BlockStore.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

// PutBlock atomically writes block and certificate together, the height
// index, and a request-id entry for each message the block carries, and
// advances the last-block pointer if block's height is the new maximum
// (spec §4.G atomicity, crash recovery). A repeat write of an already-stored
// hash is a no-op (spec §5 "put_block idempotence"); late-arriving votes
// that widen a certificate after delivery go through UpdateCertificate
// instead, which is not idempotent.
func (s *BlockStore) PutBlock(block *core.Block, cert *core.Certificate) error {
	hash, err := block.Hash()
	if err != nil {
		return err
	}
	if _, err := s.db.Get([]byte(prefixBlock + hash.String())); err == nil {
		return nil
	}

	blockBytes, err := json.Marshal(block)
	if err != nil {
		return fmt.Errorf("marshal block: %w", err)
	}
	certBytes, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("marshal certificate: %w", err)
	}

	advance, err := s.advancesTip(block.Header.Height)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	batch.Set([]byte(prefixBlock+hash.String()), blockBytes)
	batch.Set([]byte(prefixCert+hash.String()), certBytes)
	batch.Set([]byte(heightKey(block.Header.Height)), []byte(hash.String()))
	if advance {
		batch.Set([]byte(keyLastHash), []byte(hash.String()))
	}
	for _, msg := range block.Messages {
		id, err := msg.RequestID()
		if err != nil {
			return fmt.Errorf("request id of delivered message: %w", err)
		}
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		batch.Set([]byte(prefixMsg+id.String()), msgBytes)
	}
	return batch.Write()
}

// UpdateCertificate overwrites the durable certificate for an already-stored
// block hash, used when a commit arrives after delivery and widens the
// signer set (spec §8 "certificate completion after delivery"). Unlike
// PutBlock this is never a no-op: it always replaces the stored bytes.
func (s *BlockStore) UpdateCertificate(hash identity.Hash256, cert *core.Certificate) error {
	if _, err := s.db.Get([]byte(prefixBlock + hash.String())); err != nil {
		return err
	}
	certBytes, err := json.Marshal(cert)
	if err != nil {
		return fmt.Errorf("marshal certificate: %w", err)
	}
	return s.db.Set([]byte(prefixCert+hash.String()), certBytes)
}

func (s *BlockStore) advancesTip(height uint64) (bool, error) {
	last, err := s.LastBlock()
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return height > last.Header.Height, nil
}

// GetBlockByHash returns the block stored under hash, or core.ErrNotFound.
func (s *BlockStore) GetBlockByHash(hash identity.Hash256) (*core.Block, error) {
	data, err := s.db.Get([]byte(prefixBlock + hash.String()))
	if err != nil {
		return nil, err
	}
	var block core.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return nil, err
	}
	return &block, nil
}

// GetBlockByHeight resolves the height index then loads the block.
func (s *BlockStore) GetBlockByHeight(height uint64) (*core.Block, error) {
	hashBytes, err := s.db.Get([]byte(heightKey(height)))
	if err != nil {
		return nil, err
	}
	hash, err := identity.HashFromHex(string(hashBytes))
	if err != nil {
		return nil, err
	}
	return s.GetBlockByHash(hash)
}

// LastBlock returns the highest-height block whose (block, certificate)
// pair is fully durable, or (nil, nil) if the store is empty (spec §4.G
// "last_block() must reflect the highest height whose full pair is durable").
func (s *BlockStore) LastBlock() (*core.Block, error) {
	hashBytes, err := s.db.Get([]byte(keyLastHash))
	if err == core.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	hash, err := identity.HashFromHex(string(hashBytes))
	if err != nil {
		return nil, err
	}
	return s.GetBlockByHash(hash)
}

// GetCertificate returns the stored certificate for hash.
func (s *BlockStore) GetCertificate(hash identity.Hash256) (*core.Certificate, error) {
	data, err := s.db.Get([]byte(prefixCert + hash.String()))
	if err != nil {
		return nil, err
	}
	var cert core.Certificate
	if err := json.Unmarshal(data, &cert); err != nil {
		return nil, err
	}
	return &cert, nil
}

// PutMessage stores a client message, keyed by its request id (spec §4.G,
// optional, "required only if the application requests it").
func (s *BlockStore) PutMessage(msg core.Message) error {
	id, err := msg.RequestID()
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(prefixMsg+id.String()), data)
}

// GetMessage looks up a previously stored message by request id.
func (s *BlockStore) GetMessage(id identity.Hash256) (*core.Message, error) {
	data, err := s.db.Get([]byte(prefixMsg + id.String()))
	if err != nil {
		return nil, err
	}
	var msg core.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessageCount walks the msg/ key space and reports how many client
// messages have been durably indexed by delivered blocks so far (spec §6
// "node/health" diagnostics).
func (s *BlockStore) MessageCount() (int, error) {
	it := s.db.NewIterator([]byte(prefixMsg))
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n, it.Error()
}

func heightKey(height uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return prefixHeight + string(buf)
}
