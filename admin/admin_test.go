/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package admin_test

import (
	"net"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/clusterkv/clusterkv/admin"
	"github.com/clusterkv/clusterkv/connpool"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/store"
	"github.com/clusterkv/clusterkv/vclock"
	"github.com/clusterkv/clusterkv/wire"
)

// testNode wires a metadata store, a set of named stores, and a wire.Server
// behind a real TCP listener, the way cmd/node would.
type testNode struct {
	nodeID uint16
	meta   *metadata.Store
	stores map[string]store.Store
	router *ring.Router
	ln     net.Listener
}

func newTestNode(nodeID uint16, router *ring.Router) *testNode {
	meta, err := metadata.New(nodeID, ":memory:")
	Expect(err).NotTo(HaveOccurred())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	n := &testNode{nodeID: nodeID, meta: meta, stores: map[string]store.Store{}, router: router, ln: ln}
	srv := &wire.Server{
		NodeID: nodeID,
		Meta:   meta,
		Stores: func(name string) (store.Store, bool) { s, ok := n.stores[name]; return s, ok },
		Router: func() *ring.Router { return n.router },
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.Serve(conn)
		}
	}()
	return n
}

func (n *testNode) addr() string { return n.ln.Addr().String() }
func (n *testNode) close()       { n.ln.Close() }

func twoNodeCluster(addr0, addr1 string) *ring.Cluster {
	c := ring.NewCluster("c")
	c.Nodes[0] = mustHostPort(0, addr0, []uint16{0, 1})
	c.Nodes[1] = mustHostPort(1, addr1, []uint16{2, 3})
	return c
}

func mustHostPort(id uint16, addr string, parts []uint16) *ring.Node {
	host, portStr, err := net.SplitHostPort(addr)
	Expect(err).NotTo(HaveOccurred())
	port, err := strconv.Atoi(portStr)
	Expect(err).NotTo(HaveOccurred())
	return &ring.Node{ID: id, Host: host, AdminPort: uint16(port), PartitionIDs: parts}
}

func mustClusterXML(c *ring.Cluster) string {
	b, err := ring.MarshalClusterXML(c)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

var _ = Describe("Client", func() {
	It("pushes cluster.xml to a peer via UPDATE_CLUSTER_METADATA", func() {
		n0 := newTestNode(0, nil)
		defer n0.close()
		n1 := newTestNode(1, nil)
		defer n1.close()

		c := twoNodeCluster(n0.addr(), n1.addr())
		_, err := n0.meta.PutForce(metadata.KeyCluster, mustClusterXML(c))
		Expect(err).NotTo(HaveOccurred())

		pool := connpool.NewRegistry(connpool.Config{MaxConnections: 4, ConnectTimeoutMs: 1000, SocketTimeoutMs: 2000, CheckoutTimeoutMs: 1000})
		cl := admin.New(0, n0.meta, pool, 2*time.Second)

		Expect(cl.UpdateClusterMetaData(n1.addr(), c, metadata.KeyCluster)).To(Succeed())
		got, _, err := n1.meta.GetCluster()
		Expect(err).NotTo(HaveOccurred())
		Expect(got.NodeIDs()).To(Equal(c.NodeIDs()))
	})

	It("round-trips a value through REDIRECT_GET", func() {
		n0 := newTestNode(0, nil)
		defer n0.close()
		mem := store.NewMem("s")
		n0.stores["s"] = mem
		clock := vclock.New().Increment(0)
		Expect(mem.Put([]byte("k"), store.Versioned{Value: []byte("v1"), Version: clock})).To(Succeed())

		pool := connpool.NewRegistry(connpool.Config{MaxConnections: 4, ConnectTimeoutMs: 1000, SocketTimeoutMs: 2000, CheckoutTimeoutMs: 1000})
		meta, _ := metadata.New(9, ":memory:")
		cl := admin.New(9, meta, pool, 2*time.Second)

		out, err := cl.RedirectGet(n0.addr(), "s", []byte("k"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(1))
		Expect(out[0].Value).To(Equal([]byte("v1")))
	})

	It("pipes partitions {0,1} from source to sink and is idempotent on re-run", func() {
		cSrc := ring.NewCluster("c")
		cSrc.Nodes[0] = &ring.Node{ID: 0, PartitionIDs: []uint16{0, 1, 2, 3}}
		router, err := ring.NewRouter(cSrc)
		Expect(err).NotTo(HaveOccurred())

		src := newTestNode(0, router)
		defer src.close()
		sink := newTestNode(1, router)
		defer sink.close()

		mem := store.NewMem("s")
		src.stores["s"] = mem
		sink.stores["s"] = store.NewMem("s")

		for i := 0; i < 40; i++ {
			key := []byte{byte(i)}
			Expect(mem.Put(key, store.Versioned{Value: []byte("val"), Version: vclock.New().Increment(0)})).To(Succeed())
		}

		pool := connpool.NewRegistry(connpool.Config{MaxConnections: 4, ConnectTimeoutMs: 1000, SocketTimeoutMs: 2000, CheckoutTimeoutMs: 1000})
		meta, _ := metadata.New(9, ":memory:")
		cl := admin.New(9, meta, pool, 2*time.Second)

		Expect(cl.PipeGetAndPutStreams(src.addr(), sink.addr(), "s", []uint16{0, 1})).To(Succeed())

		it, err := sink.stores["s"].Entries()
		Expect(err).NotTo(HaveOccurred())
		count := 0
		for it.Next() {
			count++
			parts := router.PartitionList(it.Entry().Key, 1)
			Expect(parts[0]).To(BeElementOf(uint16(0), uint16(1)))
		}
		Expect(count).To(BeNumerically(">", 0))

		// re-run: must not duplicate or surface ObsoleteVersion to the caller
		Expect(cl.PipeGetAndPutStreams(src.addr(), sink.addr(), "s", []uint16{0, 1})).To(Succeed())
		it2, _ := sink.stores["s"].Entries()
		count2 := 0
		for it2.Next() {
			count2++
		}
		Expect(count2).To(Equal(count))
	})

	It("drives StealPartitionsFromCluster end-to-end between two real nodes", func() {
		donor := newTestNode(0, nil)
		defer donor.close()
		thief := newTestNode(1, nil)
		defer thief.close()

		oldCluster := ring.NewCluster("c")
		oldCluster.Nodes[0] = mustHostPort(0, donor.addr(), []uint16{0, 1, 2, 3})
		oldCluster.Nodes[1] = mustHostPort(1, thief.addr(), nil)

		router, err := ring.NewRouter(oldCluster)
		Expect(err).NotTo(HaveOccurred())
		donor.router = router
		thief.router = router

		newCluster := ring.NewCluster("c")
		newCluster.Nodes[0] = mustHostPort(0, donor.addr(), []uint16{2, 3})
		newCluster.Nodes[1] = mustHostPort(1, thief.addr(), []uint16{0, 1})

		donorMem := store.NewMem("s")
		donor.stores["s"] = donorMem
		thief.stores["s"] = store.NewMem("s")

		var wantMoved [][]byte
		for i := 0; i < 40; i++ {
			key := []byte{byte(i)}
			Expect(donorMem.Put(key, store.Versioned{Value: []byte("v"), Version: vclock.New().Increment(0)})).To(Succeed())
			if parts := router.PartitionList(key, 1); parts[0] == 0 || parts[0] == 1 {
				wantMoved = append(wantMoved, key)
			}
		}
		Expect(wantMoved).NotTo(BeEmpty())

		meta, err := metadata.New(1, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		_, err = meta.PutForce(metadata.KeyCluster, mustClusterXML(oldCluster))
		Expect(err).NotTo(HaveOccurred())

		pool := connpool.NewRegistry(connpool.Config{MaxConnections: 4, ConnectTimeoutMs: 1000, SocketTimeoutMs: 2000, CheckoutTimeoutMs: 1000})
		cl := admin.New(1, meta, pool, 2*time.Second)

		Expect(cl.StealPartitionsFromCluster("s", newCluster)).To(Succeed())

		it, err := thief.stores["s"].Entries()
		Expect(err).NotTo(HaveOccurred())
		got := map[string]bool{}
		for it.Next() {
			got[string(it.Entry().Key)] = true
		}
		for _, k := range wantMoved {
			Expect(got[string(k)]).To(BeTrue())
		}
		Expect(got).To(HaveLen(len(wantMoved)))

		state, err := thief.meta.GetServerState()
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(Equal(metadata.NormalState))

		finalCluster, _, err := thief.meta.GetCluster()
		Expect(err).NotTo(HaveOccurred())
		Expect(finalCluster.Nodes[1].PartitionIDs).To(Equal([]uint16{0, 1}))
		Expect(finalCluster.Nodes[0].PartitionIDs).To(Equal([]uint16{2, 3}))
	})
})
