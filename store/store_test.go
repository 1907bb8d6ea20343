/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package store_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterkv/clusterkv/store"
	"github.com/clusterkv/clusterkv/vclock"
)

func mkVersioned(nodeID uint16, val string) store.Versioned {
	return store.Versioned{Value: []byte(val), Version: vclock.New().Increment(nodeID)}
}

// sharedBehavior exercises the put/get/delete contract every Store
// implementation must satisfy identically.
func sharedBehavior(newStore func() store.Store) {
	It("returns nothing for an absent key", func() {
		s := newStore()
		defer s.Close()
		vs, err := s.Get([]byte("nope"))
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(BeEmpty())
	})

	It("round-trips a single put", func() {
		s := newStore()
		defer s.Close()
		v := mkVersioned(1, "hello")
		Expect(s.Put([]byte("k"), v)).To(Succeed())
		vs, err := s.Get([]byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(HaveLen(1))
		Expect(vs[0].Value).To(Equal([]byte("hello")))
	})

	It("rejects a put whose version is dominated by the existing one", func() {
		s := newStore()
		defer s.Close()
		base := vclock.New().Increment(1)
		ahead := base.Increment(1)
		Expect(s.Put([]byte("k"), store.Versioned{Value: []byte("v2"), Version: ahead})).To(Succeed())
		err := s.Put([]byte("k"), store.Versioned{Value: []byte("v1"), Version: base})
		Expect(err).To(HaveOccurred())
	})

	It("keeps concurrent writes as siblings", func() {
		s := newStore()
		defer s.Close()
		base := vclock.New().Increment(1)
		a := base.Increment(1)
		b := base.Increment(2)
		Expect(s.Put([]byte("k"), store.Versioned{Value: []byte("a"), Version: a})).To(Succeed())
		Expect(s.Put([]byte("k"), store.Versioned{Value: []byte("b"), Version: b})).To(Succeed())
		vs, err := s.Get([]byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(HaveLen(2))
	})

	It("deletes a version dominated by the tombstone clock", func() {
		s := newStore()
		defer s.Close()
		v := mkVersioned(1, "x")
		Expect(s.Put([]byte("k"), v)).To(Succeed())
		removed, err := s.Delete([]byte("k"), v.Version.Increment(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeTrue())
		vs, _ := s.Get([]byte("k"))
		Expect(vs).To(BeEmpty())
	})

	It("answers GetAll for a batch of keys, skipping misses", func() {
		s := newStore()
		defer s.Close()
		Expect(s.Put([]byte("a"), mkVersioned(1, "av"))).To(Succeed())
		Expect(s.Put([]byte("b"), mkVersioned(1, "bv"))).To(Succeed())
		out, err := s.GetAll([][]byte{[]byte("a"), []byte("b"), []byte("missing")})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
	})
}

var _ = Describe("memStore", func() {
	sharedBehavior(func() store.Store { return store.NewMem("test") })
})

var _ = Describe("diskStore", func() {
	sharedBehavior(func() store.Store {
		s, err := store.NewDisk("test", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})

	It("survives encode/decode of multiple sibling versions", func() {
		s, err := store.NewDisk("test", ":memory:")
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		base := vclock.New().Increment(1)
		Expect(s.Put([]byte("k"), store.Versioned{Value: []byte("a"), Version: base.Increment(1)})).To(Succeed())
		Expect(s.Put([]byte("k"), store.Versioned{Value: []byte("b"), Version: base.Increment(2)})).To(Succeed())
		vs, err := s.Get([]byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(HaveLen(2))
	})
})

var _ = Describe("lruStore", func() {
	sharedBehavior(func() store.Store { return store.NewLRU("test", 16) })

	It("evicts the least recently used key once over capacity", func() {
		s := store.NewLRU("test", 2)
		defer s.Close()
		Expect(s.Put([]byte("a"), mkVersioned(1, "a"))).To(Succeed())
		Expect(s.Put([]byte("b"), mkVersioned(1, "b"))).To(Succeed())
		// touch "a" so "b" becomes the least recently used
		_, _ = s.Get([]byte("a"))
		Expect(s.Put([]byte("c"), mkVersioned(1, "c"))).To(Succeed())

		vb, _ := s.Get([]byte("b"))
		Expect(vb).To(BeEmpty())
		va, _ := s.Get([]byte("a"))
		Expect(va).NotTo(BeEmpty())
		vc, _ := s.Get([]byte("c"))
		Expect(vc).NotTo(BeEmpty())
	})

	It("does not support Entries", func() {
		s := store.NewLRU("test", 4)
		defer s.Close()
		_, err := s.Entries()
		Expect(err).To(HaveOccurred())
	})
})
