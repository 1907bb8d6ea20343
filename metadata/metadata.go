// Package metadata implements the per-node metadata store (C4): a small,
// single-writer, versioned key/value store holding the handful of reserved
// keys (cluster.xml, stores.xml, server.state, old.cluster.xml) that every
// node must agree on. Unlike the general local store (C3), a metadata key
// has exactly one current value — concurrent pushes are a conflict to
// reject, not siblings to keep.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package metadata

import (
	"sync"

	"github.com/tidwall/buntdb"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/vclock"
)

const (
	KeyCluster    = "cluster.xml"
	KeyStores     = "stores.xml"
	KeyServerState = "server.state"
	KeyOldCluster = "old.cluster.xml"
)

var reserved = map[string]bool{
	KeyCluster:     true,
	KeyStores:      true,
	KeyServerState: true,
	KeyOldCluster:  true,
}

type ServerState string

const (
	NormalState      ServerState = "NORMAL_STATE"
	RebalancingState ServerState = "REBALANCING_STATE"
)

// Entry is one metadata key's current value and the clock that versions it.
type Entry struct {
	Value   string
	Version vclock.Clock
}

// Store is the C4 metadata store. Every Put runs in the same critical
// section (mu), so there is never more than one metadata mutation in
// flight on a given node — the spec's single-writer requirement.
type Store struct {
	nodeID uint16
	mu     sync.Mutex
	db     *buntdb.DB
}

func New(nodeID uint16, path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, &cos.ErrIO{Cause: err}
	}
	return &Store{nodeID: nodeID, db: db}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return &cos.ErrIO{Cause: err}
	}
	return nil
}

// Get returns the current entry for key, or ok=false if it has never been
// set. Get does not require key to be reserved: an operator may stash
// arbitrary bootstrap metadata before a reserved key is ever written.
func (s *Store) Get(key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) (Entry, bool, error) {
	var raw string
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err == buntdb.ErrNotFound {
			return nil
		}
		raw = v
		return err
	})
	if err != nil {
		return Entry{}, false, &cos.ErrIO{Cause: err}
	}
	if raw == "" {
		return Entry{}, false, nil
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Put writes value under key at version, provided key is one of the
// reserved metadata keys. A version not strictly after the current one is
// rejected as ErrObsoleteVersion, whether it is a stale retry (Before or
// Equal) or two writers racing (Concurrent) — this store holds exactly one
// current version per key, so there is no sibling to keep either way. The
// stored version is the caller's version bumped by this node's own
// counter, so a later reader can tell which node committed it.
func (s *Store) Put(key, value string, version vclock.Clock) (vclock.Clock, error) {
	if !reserved[key] {
		return vclock.Clock{}, &cos.ErrUnknownMetadataKey{Key: key}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.getLocked(key)
	if err != nil {
		return vclock.Clock{}, err
	}
	if ok && vclock.Compare(version, cur.Version) != vclock.After {
		// Anything short of strictly-after — Before, Equal, or Concurrent —
		// is a stale or racing write against a store that holds exactly one
		// current version.
		return vclock.Clock{}, &cos.ErrObsoleteVersion{Key: key}
	}
	committed := version.Increment(s.nodeID)
	if err := s.persistLocked(key, value, committed); err != nil {
		return vclock.Clock{}, err
	}
	return committed, nil
}

// PutForce writes value under key unconditionally, synthesizing the next
// version as a bump of whatever is currently stored (or a fresh clock if
// key has never been set). It exists for the admin wire handlers: opcodes
// like UPDATE_CLUSTER_METADATA carry no vector clock on the wire — the
// rebalance choreography is the sole, sequential writer of cluster.xml, so
// ordering is enforced by the choreography itself rather than by the
// metadata store rejecting a caller-supplied version.
func (s *Store) PutForce(key, value string) (vclock.Clock, error) {
	if !reserved[key] {
		return vclock.Clock{}, &cos.ErrUnknownMetadataKey{Key: key}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok, err := s.getLocked(key)
	if err != nil {
		return vclock.Clock{}, err
	}
	base := vclock.New()
	if ok {
		base = cur.Version
	}
	committed := base.Increment(s.nodeID)
	if err := s.persistLocked(key, value, committed); err != nil {
		return vclock.Clock{}, err
	}
	return committed, nil
}

func (s *Store) persistLocked(key, value string, version vclock.Clock) error {
	enc := encodeEntry(Entry{Value: value, Version: version})
	if err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, enc, nil)
		return err
	}); err != nil {
		return &cos.ErrIO{Cause: err}
	}
	return nil
}

// Delete is always denied: metadata keys are never removed over the wire,
// only overwritten.
func (s *Store) Delete(key string) error {
	return &cos.ErrPermissionDenied{Op: "metadata delete " + key}
}

// Entries is always denied: the reserved keyspace is small and named, so
// there is no legitimate reason for a peer to walk it rather than ask for
// the keys it needs by name.
func (s *Store) Entries() error {
	return &cos.ErrPermissionDenied{Op: "metadata iterate"}
}

// GetCluster parses the current cluster.xml entry.
func (s *Store) GetCluster() (*ring.Cluster, vclock.Clock, error) {
	e, ok, err := s.Get(KeyCluster)
	if err != nil {
		return nil, vclock.Clock{}, err
	}
	if !ok {
		return nil, vclock.Clock{}, &cos.ErrUnknownMetadataKey{Key: KeyCluster}
	}
	c, err := ring.UnmarshalClusterXML([]byte(e.Value))
	return c, e.Version, err
}

// GetStores parses the current stores.xml entry.
func (s *Store) GetStores() ([]*ring.StoreDefinition, vclock.Clock, error) {
	e, ok, err := s.Get(KeyStores)
	if err != nil {
		return nil, vclock.Clock{}, err
	}
	if !ok {
		return nil, vclock.Clock{}, &cos.ErrUnknownMetadataKey{Key: KeyStores}
	}
	defs, err := ring.UnmarshalStoresXML([]byte(e.Value))
	return defs, e.Version, err
}

// GetStore looks a single store definition up by name out of stores.xml.
func (s *Store) GetStore(name string) (*ring.StoreDefinition, error) {
	defs, _, err := s.GetStores()
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		if d.Name == name {
			return d, nil
		}
	}
	return nil, &cos.ErrStoreNotFound{Name: name}
}

// GetServerState returns the node's current lifecycle state, defaulting to
// NormalState if server.state has never been written.
func (s *Store) GetServerState() (ServerState, error) {
	e, ok, err := s.Get(KeyServerState)
	if err != nil {
		return "", err
	}
	if !ok {
		return NormalState, nil
	}
	return ServerState(e.Value), nil
}

// SetServerState transitions the node's lifecycle state through the
// versioned Put. The wire handlers for the state-transition opcodes write
// server.state with PutForce instead, so the rebalance choreography (C7)
// does not go through this method.
func (s *Store) SetServerState(state ServerState, version vclock.Clock) (vclock.Clock, error) {
	return s.Put(KeyServerState, string(state), version)
}

func encodeEntry(e Entry) string {
	vc := e.Version.ToBytes()
	buf := make([]byte, 0, len(vc)+len(e.Value))
	buf = append(buf, vc...)
	buf = append(buf, e.Value...)
	return string(buf)
}

func decodeEntry(raw string) (Entry, error) {
	b := []byte(raw)
	if len(b) < 2 {
		return Entry{}, &cos.ErrInvalidClockFormat{Reason: "metadata entry truncated"}
	}
	n := int(b[0])<<8 | int(b[1])
	clockLen := 2 + n*10 + 8
	if len(b) < clockLen {
		return Entry{}, &cos.ErrInvalidClockFormat{Reason: "metadata entry truncated"}
	}
	vc, err := vclock.FromBytes(b[:clockLen])
	if err != nil {
		return Entry{}, err
	}
	return Entry{Value: string(b[clockLen:]), Version: vc}, nil
}
