/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package store

import (
	"container/list"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/vclock"
)

// lruStore is the bounded "soft-reference" backend from the design notes:
// Put always succeeds, but an entry can be evicted under memory pressure
// (here: once the store holds more than capacity keys). A Get against an
// evicted key returns an empty result rather than an error — a caller can
// always treat an lruStore miss as "go ask another replica", never as
// "this key doesn't exist" or "this data is wrong". Entries() is
// unsupported: the bulk-stream engine must use a durable backend to
// enumerate a partition's keyspace.
type lruStore struct {
	name     string
	capacity int

	mu    sync.Mutex
	ll    *list.List // front = most recently used
	items map[string]*list.Element
}

type lruEntry struct {
	key string
	val []Versioned
}

// NewLRU returns a Store that keeps at most capacity keys, evicting the
// least recently used on overflow.
func NewLRU(name string, capacity int) Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruStore{name: name, capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

func (s *lruStore) Name() string { return s.name }

func (s *lruStore) Get(key []byte) ([]Versioned, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[cos.UnsafeS(key)]
	if !ok {
		return nil, nil
	}
	s.ll.MoveToFront(el)
	ent := el.Value.(*lruEntry)
	out := make([]Versioned, len(ent.val))
	for i, v := range ent.val {
		out[i] = v.Clone()
	}
	return out, nil
}

func (s *lruStore) GetAll(keys [][]byte) (map[string][]Versioned, error) {
	out := make(map[string][]Versioned, len(keys))
	var mu sync.Mutex
	var eg errgroup.Group
	for _, k := range keys {
		k := k
		eg.Go(func() error {
			v, err := s.Get(k)
			if err != nil || len(v) == 0 {
				return err
			}
			mu.Lock()
			out[string(k)] = v
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *lruStore) Put(key []byte, v Versioned) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	var existing []Versioned
	if el, ok := s.items[k]; ok {
		existing = el.Value.(*lruEntry).val
	}
	next, err := resolvePut(existing, v.Clone())
	if err != nil {
		return err
	}
	s.setLocked(k, next)
	return nil
}

func (s *lruStore) Delete(key []byte, v vclock.Clock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	el, ok := s.items[k]
	if !ok {
		return false, nil
	}
	next, removed := resolveDelete(el.Value.(*lruEntry).val, v)
	if len(next) == 0 {
		s.ll.Remove(el)
		delete(s.items, k)
	} else {
		el.Value.(*lruEntry).val = next
		s.ll.MoveToFront(el)
	}
	return removed, nil
}

// setLocked inserts or updates k, then evicts from the back until the
// store is back within capacity. Must hold s.mu.
func (s *lruStore) setLocked(k string, val []Versioned) {
	if el, ok := s.items[k]; ok {
		el.Value.(*lruEntry).val = val
		s.ll.MoveToFront(el)
		return
	}
	el := s.ll.PushFront(&lruEntry{key: k, val: val})
	s.items[k] = el
	for s.ll.Len() > s.capacity {
		back := s.ll.Back()
		if back == nil {
			break
		}
		s.ll.Remove(back)
		delete(s.items, back.Value.(*lruEntry).key)
	}
}

func (s *lruStore) Entries() (Iterator, error) {
	return nil, &cos.ErrNotSupported{Op: "Entries on lru store"}
}

func (s *lruStore) Close() error { return nil }
