/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package slop_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/slop"
	"github.com/clusterkv/clusterkv/store"
	"github.com/clusterkv/clusterkv/vclock"
)

func singleOwnerRouter(ownerID uint16) *ring.Router {
	c := ring.NewCluster("c")
	c.Nodes[ownerID] = &ring.Node{ID: ownerID, PartitionIDs: []uint16{0}}
	r, err := ring.NewRouter(c)
	Expect(err).NotTo(HaveOccurred())
	return r
}

var _ = Describe("Store", func() {
	It("writes directly to the inner store when this node owns the key", func() {
		router := singleOwnerRouter(5)
		inner := store.NewMem("inner")
		slopS := store.NewMem("slop")
		s := slop.New("s", 5, 1, router, inner, slopS)

		v := store.Versioned{Value: []byte("v"), Version: vclock.New().Increment(5)}
		Expect(s.Put([]byte("k"), v)).To(Succeed())

		vs, err := inner.Get([]byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(vs).To(HaveLen(1))

		it, err := slopS.Entries()
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Next()).To(BeFalse())
	})

	It("diverts a put for a key this node doesn't own into the slop store", func() {
		router := singleOwnerRouter(5) // node 5 owns everything
		inner := store.NewMem("inner")
		slopS := store.NewMem("slop")
		s := slop.New("s", 9, 1, router, inner, slopS) // this store runs as node 9

		v := store.Versioned{Value: []byte("payload"), Version: vclock.New().Increment(9)}
		Expect(s.Put([]byte("k"), v)).To(Succeed())

		vs, _ := inner.Get([]byte("k"))
		Expect(vs).To(BeEmpty())

		it, err := slopS.Entries()
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Next()).To(BeTrue())
		rec, err := slop.DecodeRecord(it.Entry().Value.Value)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.StoreName).To(Equal("s"))
		Expect(rec.Op).To(Equal(slop.OpPut))
		Expect(string(rec.Key)).To(Equal("k"))
		Expect(string(rec.Value)).To(Equal("payload"))

		Expect(s.HasSlop("s", slop.OpPut, []byte("k"))).To(BeTrue())
	})

	It("diverts a delete for an unowned key too", func() {
		router := singleOwnerRouter(5)
		inner := store.NewMem("inner")
		slopS := store.NewMem("slop")
		s := slop.New("s", 9, 1, router, inner, slopS)

		removed, err := s.Delete([]byte("k"), vclock.New().Increment(9))
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(BeTrue())

		it, err := slopS.Entries()
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Next()).To(BeTrue())
		rec, err := slop.DecodeRecord(it.Entry().Value.Value)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Op).To(Equal(slop.OpDelete))
	})
})
