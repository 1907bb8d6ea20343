// Package slop implements the slop-detecting store (C5): a Store decorator
// that checks every write against the current routing table and, when this
// node isn't one of the key's rightful owners, diverts the write into a
// local slop queue instead of accepting it directly. A background drainer (outside this package's
// scope) later replays queued slop to the rightful owners and deletes it.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package slop

import (
	"fmt"
	"sync"

	cuckoo "github.com/seiflotfy/cuckoofilter"
	"github.com/tinylib/msgp/msgp"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/cmn/nlog"
	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/store"
	"github.com/clusterkv/clusterkv/vclock"
)

type Op byte

const (
	OpPut Op = iota + 1
	OpDelete
)

// Record is one queued slop entry: everything needed to later replay the
// operation against its rightful owner.
type Record struct {
	StoreName string
	Op        Op
	Key       []byte
	Value     []byte      // unset for OpDelete
	Version   vclock.Clock
}

// Store wraps an inner Store with ownership checking. Writes for keys this
// node owns go straight to inner; writes for keys it doesn't own are
// recorded into slopStore under a deterministic key so a repeated delivery
// of the same write lands on the same slop record instead of piling up
// duplicates.
type Store struct {
	name   string
	nodeID uint16
	rf     uint8

	router *ring.Router
	inner  store.Store
	slop   store.Store

	mu     sync.Mutex
	filter *cuckoo.Filter // probabilistic per-record "might this slop key be queued" check
}

func New(name string, nodeID uint16, rf uint8, router *ring.Router, inner, slop store.Store) *Store {
	return &Store{
		name: name, nodeID: nodeID, rf: rf,
		router: router, inner: inner, slop: slop,
		filter: cuckoo.NewFilter(1 << 16),
	}
}

func (s *Store) Name() string { return s.name }

// owns reports whether this node is one of key's rightful owners. A Store
// built with a nil router (a node that had no cluster.xml when it opened
// the store) can't defer writes to peers it doesn't know about, so it
// accepts everything locally. The router is fixed when the Store is built;
// a cluster.xml installed later does not change it.
func (s *Store) owns(key []byte) bool {
	if s.router == nil {
		return true
	}
	for _, n := range s.router.Route(key, s.rf) {
		if n.ID == s.nodeID {
			return true
		}
	}
	return false
}

// slopKey is deterministic in (store, origin node, op, key): replaying the
// identical write twice updates the same slop record rather than queuing a
// second one.
func slopKey(storeName string, nodeID uint16, op Op, key []byte) []byte {
	return []byte(fmt.Sprintf("%s\x00%d\x00%d\x00%s", storeName, nodeID, op, key))
}

func (s *Store) Get(key []byte) ([]store.Versioned, error) { return s.inner.Get(key) }

func (s *Store) GetAll(keys [][]byte) (map[string][]store.Versioned, error) {
	return s.inner.GetAll(keys)
}

func (s *Store) Put(key []byte, v store.Versioned) error {
	if s.owns(key) {
		return s.inner.Put(key, v)
	}
	return s.enqueueSlop(Record{StoreName: s.name, Op: OpPut, Key: key, Value: v.Value, Version: v.Version})
}

func (s *Store) Delete(key []byte, v vclock.Clock) (bool, error) {
	if s.owns(key) {
		return s.inner.Delete(key, v)
	}
	if err := s.enqueueSlop(Record{StoreName: s.name, Op: OpDelete, Key: key, Version: v}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) enqueueSlop(r Record) error {
	sk := slopKey(r.StoreName, s.nodeID, r.Op, r.Key)
	diagID := cos.GenUUID()
	enc, err := encodeRecord(r)
	if err != nil {
		return err
	}
	if err := s.slop.Put(sk, store.Versioned{Value: enc, Version: r.Version}); err != nil {
		if _, ok := err.(*cos.ErrObsoleteVersion); ok {
			return nil // a newer or equal slop record already covers this write
		}
		return err
	}
	s.mu.Lock()
	s.filter.InsertUnique(sk)
	s.mu.Unlock()
	nlog.Infof("slop[%s]: queued store=%s op=%d key=%x on node %d", diagID, r.StoreName, r.Op, r.Key, s.nodeID)
	return nil
}

// HasSlop is a fast, possibly-false-positive check for whether this node
// might hold a slop record for (storeName, op, key); a negative answer is
// exact. Keys are added when a record is queued and are not removed by
// DiscardSlop.
func (s *Store) HasSlop(storeName string, op Op, key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Lookup(slopKey(storeName, s.nodeID, op, key))
}

// Entries enumerates queued slop records for the drainer to replay.
func (s *Store) Entries() (store.Iterator, error) { return s.slop.Entries() }

// DiscardSlop removes a slop record once it has been successfully replayed
// to its rightful owner.
func (s *Store) DiscardSlop(sk []byte, v vclock.Clock) (bool, error) {
	return s.slop.Delete(sk, v)
}

func (s *Store) Close() error {
	if err := s.inner.Close(); err != nil {
		return err
	}
	return s.slop.Close()
}

func encodeRecord(r Record) ([]byte, error) {
	b := msgp.AppendArrayHeader(nil, 5)
	b = msgp.AppendString(b, r.StoreName)
	b = msgp.AppendUint8(b, uint8(r.Op))
	b = msgp.AppendBytes(b, r.Key)
	b = msgp.AppendBytes(b, r.Value)
	b = msgp.AppendBytes(b, r.Version.ToBytes())
	return b, nil
}

// DecodeRecord parses a Record back out of a slop entry's stored bytes, for
// the drainer to read what it's about to replay.
func DecodeRecord(b []byte) (Record, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n != 5 {
		return Record{}, &cos.ErrInvalidRequest{Reason: "corrupt slop record"}
	}
	var r Record
	var storeName string
	var opByte uint8
	var key, value, vcBytes []byte
	storeName, b, err = msgp.ReadStringBytes(b)
	if err != nil {
		return Record{}, err
	}
	opByte, b, err = msgp.ReadUint8Bytes(b)
	if err != nil {
		return Record{}, err
	}
	key, b, err = msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return Record{}, err
	}
	value, b, err = msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return Record{}, err
	}
	vcBytes, _, err = msgp.ReadBytesBytes(b, nil)
	if err != nil {
		return Record{}, err
	}
	vc, err := vclock.FromBytes(vcBytes)
	if err != nil {
		return Record{}, err
	}
	r.StoreName, r.Op, r.Key, r.Value, r.Version = storeName, Op(opByte), key, value, vc
	return r, nil
}
