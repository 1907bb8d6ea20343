/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package store

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/vclock"
)

// memStore is the in-process reference Store: a plain map guarded by a
// single RWMutex. Put/Delete take the write lock so resolvePut/resolveDelete
// observe a consistent existing-version list; Get/GetAll take the read lock.
type memStore struct {
	name string
	mu   sync.RWMutex
	data map[string][]Versioned
}

// NewMem returns an empty in-memory Store named name.
func NewMem(name string) Store {
	return &memStore{name: name, data: make(map[string][]Versioned)}
}

func (s *memStore) Name() string { return s.name }

func (s *memStore) Get(key []byte) ([]Versioned, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing := s.data[cos.UnsafeS(key)]
	out := make([]Versioned, len(existing))
	for i, v := range existing {
		out[i] = v.Clone()
	}
	return out, nil
}

// GetAll fans the per-key lookups out across an errgroup; memStore's own
// locking makes this mostly bookkeeping. (disk's GetAll instead reads every
// key inside one buntdb read transaction.)
func (s *memStore) GetAll(keys [][]byte) (map[string][]Versioned, error) {
	out := make(map[string][]Versioned, len(keys))
	var mu sync.Mutex
	var eg errgroup.Group
	for _, k := range keys {
		k := k
		eg.Go(func() error {
			v, err := s.Get(k)
			if err != nil {
				return err
			}
			if len(v) == 0 {
				return nil
			}
			mu.Lock()
			out[cos.UnsafeS(k)] = v
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *memStore) Put(key []byte, v Versioned) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	next, err := resolvePut(s.data[k], v.Clone())
	if err != nil {
		return err
	}
	s.data[k] = next
	return nil
}

func (s *memStore) Delete(key []byte, v vclock.Clock) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := string(key)
	next, removed := resolveDelete(s.data[k], v)
	if len(next) == 0 {
		delete(s.data, k)
	} else {
		s.data[k] = next
	}
	return removed, nil
}

func (s *memStore) Entries() (Iterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.data))
	for k, vs := range s.data {
		for _, v := range vs {
			entries = append(entries, Entry{Key: []byte(k), Value: v.Clone()})
		}
	}
	return &sliceIterator{entries: entries, pos: -1}, nil
}

func (s *memStore) Close() error { return nil }

type sliceIterator struct {
	entries []Entry
	pos     int
}

func (it *sliceIterator) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *sliceIterator) Entry() Entry { return it.entries[it.pos] }
func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }
