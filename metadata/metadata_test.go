/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package metadata_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/vclock"
)

func newStore() *metadata.Store {
	s, err := metadata.New(1, ":memory:")
	Expect(err).NotTo(HaveOccurred())
	return s
}

var _ = Describe("Store", func() {
	It("rejects puts to unreserved keys", func() {
		s := newStore()
		defer s.Close()
		_, err := s.Put("not.a.real.key", "x", vclock.New())
		Expect(err).To(HaveOccurred())
	})

	It("accepts the first put to a reserved key", func() {
		s := newStore()
		defer s.Close()
		_, err := s.Put(metadata.KeyServerState, string(metadata.NormalState), vclock.New())
		Expect(err).NotTo(HaveOccurred())
		e, ok, err := s.Get(metadata.KeyServerState)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(e.Value).To(Equal(string(metadata.NormalState)))
	})

	It("rejects a stale (Before-or-Equal) rewrite as ObsoleteVersion", func() {
		s := newStore()
		defer s.Close()
		v0, err := s.Put(metadata.KeyServerState, "a", vclock.New())
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Put(metadata.KeyServerState, "b", v0)
		Expect(err).To(HaveOccurred())
		Expect(cos.IsObsoleteVersion(err)).To(BeTrue())
	})

	It("rejects a concurrent rewrite as ObsoleteVersion (the store holds only one current version)", func() {
		s := newStore()
		defer s.Close()
		base := vclock.New().Increment(9)
		_, err := s.Put(metadata.KeyServerState, "a", base)
		Expect(err).NotTo(HaveOccurred())
		concurrent := base.Increment(7) // diverges from node 1's committed bump
		_, err = s.Put(metadata.KeyServerState, "b", concurrent)
		Expect(err).To(HaveOccurred())
		Expect(cos.IsObsoleteVersion(err)).To(BeTrue())
	})

	It("always denies Delete and Entries", func() {
		s := newStore()
		defer s.Close()
		Expect(s.Delete(metadata.KeyServerState)).To(HaveOccurred())
		Expect(s.Entries()).To(HaveOccurred())
	})

	It("round-trips cluster.xml through GetCluster", func() {
		s := newStore()
		defer s.Close()
		xml := []byte(`<?xml version="1.0" encoding="UTF-8"?><cluster><name>c</name></cluster>`)
		_, err := s.Put(metadata.KeyCluster, string(xml), vclock.New())
		Expect(err).NotTo(HaveOccurred())
		c, _, err := s.GetCluster()
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("c"))
	})

	It("defaults GetServerState to NormalState when unset", func() {
		s := newStore()
		defer s.Close()
		st, err := s.GetServerState()
		Expect(err).NotTo(HaveOccurred())
		Expect(st).To(Equal(metadata.NormalState))
	})
})
