/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package ring_test

import (
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterkv/clusterkv/ring"
)

func TestRing(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ring suite")
}

func fourNodeCluster() *ring.Cluster {
	c := ring.NewCluster("c1")
	c.Nodes[0] = &ring.Node{ID: 0, Host: "n0", AdminPort: 9000, PartitionIDs: []uint16{0, 1}}
	c.Nodes[1] = &ring.Node{ID: 1, Host: "n1", AdminPort: 9001, PartitionIDs: []uint16{2, 3}}
	c.Nodes[2] = &ring.Node{ID: 2, Host: "n2", AdminPort: 9002, PartitionIDs: []uint16{4, 5}}
	c.Nodes[3] = &ring.Node{ID: 3, Host: "n3", AdminPort: 9003, PartitionIDs: []uint16{6, 7}}
	return c
}

var _ = Describe("Router", func() {
	It("returns min(rf, numNodes) distinct nodes for every key", func() {
		c := fourNodeCluster()
		r, err := ring.NewRouter(c)
		Expect(err).NotTo(HaveOccurred())

		for rf := uint8(1); rf <= 6; rf++ {
			want := int(rf)
			if want > len(c.Nodes) {
				want = len(c.Nodes)
			}
			for i := 0; i < 50; i++ {
				key := []byte(fmt.Sprintf("key-%d", i))
				nodes := r.Route(key, rf)
				Expect(nodes).To(HaveLen(want))
				seen := map[uint16]bool{}
				for _, n := range nodes {
					Expect(seen[n.ID]).To(BeFalse(), "duplicate node in preference list")
					seen[n.ID] = true
				}
			}
		}
	})

	It("is deterministic and stable for the same cluster identity", func() {
		c := fourNodeCluster()
		r, _ := ring.NewRouter(c)
		key := []byte("stable-key")
		first := r.Route(key, 2)
		for i := 0; i < 10; i++ {
			again := r.Route(key, 2)
			Expect(again[0].ID).To(Equal(first[0].ID))
			Expect(again[1].ID).To(Equal(first[1].ID))
		}
	})

	It("PartitionList's first entry is the key's primary partition", func() {
		c := fourNodeCluster()
		r, _ := ring.NewRouter(c)
		key := []byte("x")
		parts := r.PartitionList(key, 1)
		Expect(parts).NotTo(BeEmpty())
		nodes := r.Route(key, 1)
		owner, ok := c.OwnerOf(parts[0])
		Expect(ok).To(BeTrue())
		Expect(owner).To(Equal(nodes[0].ID))
	})

	It("rejects a cluster whose partitions are not contiguous from 0", func() {
		c := ring.NewCluster("bad")
		c.Nodes[0] = &ring.Node{ID: 0, PartitionIDs: []uint16{0, 2}}
		_, err := ring.NewRouter(c)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("XML codec", func() {
	It("round-trips cluster.xml byte-identically", func() {
		c := fourNodeCluster()
		b1, err := ring.MarshalClusterXML(c)
		Expect(err).NotTo(HaveOccurred())
		parsed, err := ring.UnmarshalClusterXML(b1)
		Expect(err).NotTo(HaveOccurred())
		b2, err := ring.MarshalClusterXML(parsed)
		Expect(err).NotTo(HaveOccurred())
		Expect(b2).To(Equal(b1))
	})

	It("round-trips stores.xml", func() {
		defs := []*ring.StoreDefinition{
			{Name: "s1", Type: "bdb", ReplicationFactor: 3, RequiredReads: 1, PreferredReads: 2, RequiredWrites: 1, PreferredWrites: 2, KeySerializer: "string", ValueSerializer: "json"},
		}
		b, err := ring.MarshalStoresXML(defs)
		Expect(err).NotTo(HaveOccurred())
		parsed, err := ring.UnmarshalStoresXML(b)
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed).To(HaveLen(1))
		Expect(parsed[0].Name).To(Equal("s1"))
		Expect(parsed[0].ReplicationFactor).To(Equal(uint8(3)))
	})
})

var _ = Describe("StoreDefinition.Validate", func() {
	It("enforces 1 <= required <= preferred <= rf <= numNodes", func() {
		sd := &ring.StoreDefinition{Name: "s", ReplicationFactor: 2, RequiredReads: 1, PreferredReads: 2, RequiredWrites: 1, PreferredWrites: 2}
		Expect(sd.Validate(4)).NotTo(HaveOccurred())

		bad := &ring.StoreDefinition{Name: "s", ReplicationFactor: 2, RequiredReads: 3, PreferredReads: 2, RequiredWrites: 1, PreferredWrites: 2}
		Expect(bad.Validate(4)).To(HaveOccurred())

		badRF := &ring.StoreDefinition{Name: "s", ReplicationFactor: 5, RequiredReads: 1, PreferredReads: 2, RequiredWrites: 1, PreferredWrites: 2}
		Expect(badRF.Validate(4)).To(HaveOccurred())
	})
})
