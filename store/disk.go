/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package store

import (
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"
	"github.com/tinylib/msgp/msgp"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/vclock"
)

// diskStore is the durable Store backend: a single buntdb file holding one
// row per key, value encoded as a msgp array of (value-bytes, vclock-bytes)
// pairs. There's no codegen here — the wire shape is small and fixed enough
// that hand-written Append*/Read*Bytes calls are clearer than a generated
// file nobody will read.
type diskStore struct {
	name string
	db   *buntdb.DB
}

// NewDisk opens (creating if absent) a buntdb file at path as a Store named
// name. Every write is synced before Put/Delete return: NewDisk sets
// buntdb's SyncPolicy to Always, since the default config syncs only about
// once a second.
func NewDisk(name, path string) (Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, &cos.ErrIO{Cause: err}
	}
	var cfg buntdb.Config
	if err := db.ReadConfig(&cfg); err != nil {
		db.Close()
		return nil, &cos.ErrIO{Cause: err}
	}
	cfg.SyncPolicy = buntdb.Always
	if err := db.SetConfig(cfg); err != nil {
		db.Close()
		return nil, &cos.ErrIO{Cause: err}
	}
	return &diskStore{name: name, db: db}, nil
}

func (s *diskStore) Name() string { return s.name }

func (s *diskStore) Get(key []byte) ([]Versioned, error) {
	var out []Versioned
	err := s.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(string(key))
		if err == buntdb.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		out, err = decodeVersioned([]byte(raw))
		return err
	})
	if err != nil {
		return nil, &cos.ErrIO{Cause: err}
	}
	return out, nil
}

func (s *diskStore) GetAll(keys [][]byte) (map[string][]Versioned, error) {
	out := make(map[string][]Versioned, len(keys))
	err := s.db.View(func(tx *buntdb.Tx) error {
		for _, k := range keys {
			raw, err := tx.Get(string(k))
			if err == buntdb.ErrNotFound {
				continue
			}
			if err != nil {
				return err
			}
			vs, err := decodeVersioned([]byte(raw))
			if err != nil {
				return err
			}
			out[string(k)] = vs
		}
		return nil
	})
	if err != nil {
		return nil, &cos.ErrIO{Cause: err}
	}
	return out, nil
}

func (s *diskStore) Put(key []byte, v Versioned) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		k := string(key)
		existing, err := readExisting(tx, k)
		if err != nil {
			return err
		}
		next, err := resolvePut(existing, v)
		if err != nil {
			return err
		}
		enc, err := encodeVersioned(next)
		if err != nil {
			return errors.Wrap(err, "encode versioned list")
		}
		_, _, err = tx.Set(k, string(enc), nil)
		return err
	})
}

func (s *diskStore) Delete(key []byte, v vclock.Clock) (bool, error) {
	var removed bool
	err := s.db.Update(func(tx *buntdb.Tx) error {
		k := string(key)
		existing, err := readExisting(tx, k)
		if err != nil {
			return err
		}
		next, rm := resolveDelete(existing, v)
		removed = rm
		if len(next) == 0 {
			_, err = tx.Delete(k)
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		enc, err := encodeVersioned(next)
		if err != nil {
			return errors.Wrap(err, "encode versioned list")
		}
		_, _, err = tx.Set(k, string(enc), nil)
		return err
	})
	if err != nil {
		return false, &cos.ErrIO{Cause: err}
	}
	return removed, nil
}

func (s *diskStore) Entries() (Iterator, error) {
	var entries []Entry
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, value string) bool {
			vs, err := decodeVersioned([]byte(value))
			if err != nil {
				return false
			}
			for _, v := range vs {
				entries = append(entries, Entry{Key: []byte(key), Value: v})
			}
			return true
		})
	})
	if err != nil {
		return nil, &cos.ErrIO{Cause: err}
	}
	return &sliceIterator{entries: entries, pos: -1}, nil
}

func (s *diskStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &cos.ErrIO{Cause: err}
	}
	return nil
}

func readExisting(tx *buntdb.Tx, key string) ([]Versioned, error) {
	raw, err := tx.Get(key)
	if err == buntdb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeVersioned([]byte(raw))
}

func encodeVersioned(vs []Versioned) ([]byte, error) {
	b := msgp.AppendArrayHeader(nil, uint32(len(vs)))
	for _, v := range vs {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendBytes(b, v.Value)
		b = msgp.AppendBytes(b, v.Version.ToBytes())
	}
	return b, nil
}

func decodeVersioned(b []byte) ([]Versioned, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	out := make([]Versioned, 0, n)
	for i := uint32(0); i < n; i++ {
		var pairLen uint32
		pairLen, b, err = msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return nil, err
		}
		if pairLen != 2 {
			return nil, errors.Errorf("store: corrupt versioned entry: want 2 fields, got %d", pairLen)
		}
		var value, vcBytes []byte
		value, b, err = msgp.ReadBytesBytes(b, nil)
		if err != nil {
			return nil, err
		}
		vcBytes, b, err = msgp.ReadBytesBytes(b, nil)
		if err != nil {
			return nil, err
		}
		vc, err := vclock.FromBytes(vcBytes)
		if err != nil {
			return nil, err
		}
		out = append(out, Versioned{Value: value, Version: vc})
	}
	return out, nil
}
