/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package ring

import (
	"github.com/OneOfOne/xxhash"

	"github.com/clusterkv/clusterkv/cmn/debug"
)

// Router implements the spec's consistent-routing strategy (C2): hash the
// key to a partition, then walk the partition->owner map in ring order
// collecting distinct node IDs until replicationFactor of them are found.
// It is a deterministic, total function of (cluster identity, key).
type Router struct {
	cl      *Cluster
	owner   []uint16 // partition -> nodeID, index == partition
	nodeIdx map[uint16]*Node
}

// NewRouter builds the partition->owner map once up front; the spec
// requires route() to be stable for a given cluster identity, so the map is
// frozen at construction rather than recomputed per call.
func NewRouter(cl *Cluster) (*Router, error) {
	if err := cl.Validate(); err != nil {
		return nil, err
	}
	p := cl.NumPartitions()
	r := &Router{cl: cl, owner: make([]uint16, p), nodeIdx: make(map[uint16]*Node, len(cl.Nodes))}
	assigned := make([]bool, p)
	for _, n := range cl.Nodes {
		r.nodeIdx[n.ID] = n
		for _, pid := range n.PartitionIDs {
			r.owner[pid] = n.ID
			assigned[pid] = true
		}
	}
	// cl.Validate already rejected a cluster that doesn't fully cover
	// [0, NumPartitions); this just re-affirms that invariant in builds that
	// turn assertions on, at the one spot the router actually relies on it.
	for _, ok := range assigned {
		debug.Assert(ok, "NewRouter: partition left unassigned despite a validated cluster")
	}
	return r, nil
}

func partitionOf(key []byte, numPartitions int) uint16 {
	digest := xxhash.Checksum64(key)
	return uint16(digest % uint64(numPartitions))
}

// walk starts at partition p = h(key) mod P and visits partitions in ring
// order (p, p+1, ..., wrapping), collecting every partition visited and the
// distinct node IDs encountered in first-seen order, until rf distinct
// nodes have been found or every partition has been visited once.
func (r *Router) walk(key []byte, rf int) (partitions []uint16, nodeIDs []uint16) {
	p := len(r.owner)
	if p == 0 {
		return nil, nil
	}
	if rf > len(r.cl.Nodes) {
		rf = len(r.cl.Nodes)
	}
	start := int(partitionOf(key, p))
	seen := make(map[uint16]bool, rf)
	for i := 0; i < p; i++ {
		part := uint16((start + i) % p)
		partitions = append(partitions, part)
		owner := r.owner[part]
		if !seen[owner] {
			seen[owner] = true
			nodeIDs = append(nodeIDs, owner)
		}
		if len(nodeIDs) >= rf {
			break
		}
	}
	return partitions, nodeIDs
}

// Route returns the ordered preference list of nodes for key, of length
// min(replicationFactor, |cluster.nodes|). A node that owns no partition is
// never reached by the ring walk, so when such nodes exist the list can be
// shorter.
func (r *Router) Route(key []byte, replicationFactor uint8) []*Node {
	_, nodeIDs := r.walk(key, int(replicationFactor))
	out := make([]*Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if n, ok := r.nodeIdx[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// PartitionList returns the same ring walk, yielding the ordered partition
// IDs visited rather than the owning node IDs; used by the slop-detecting
// store and the bulk-stream engine to find a key's primary partition
// (PartitionList(key)[0]).
func (r *Router) PartitionList(key []byte, replicationFactor uint8) []uint16 {
	partitions, _ := r.walk(key, int(replicationFactor))
	return partitions
}

// Cluster returns the topology this router was built from.
func (r *Router) Cluster() *Cluster { return r.cl }

func (r *Router) NumPartitions() int { return len(r.owner) }
