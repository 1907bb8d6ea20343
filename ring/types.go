// Package ring holds the cluster topology (nodes, partition ownership,
// store definitions) and the consistent-routing strategy (C2) that maps a
// key to its ordered preference list of owning nodes.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package ring

import (
	"fmt"
	"sort"

	"github.com/clusterkv/clusterkv/cmn/cos"
)

type NodeStatus int

const (
	Available NodeStatus = iota
	Unavailable
)

func (s NodeStatus) String() string {
	if s == Available {
		return "AVAILABLE"
	}
	return "UNAVAILABLE"
}

// Node is one member of the cluster's ring, owning a disjoint slice of the
// partition space.
type Node struct {
	ID           uint16
	Host         string
	HTTPPort     uint16
	SocketPort   uint16
	AdminPort    uint16
	PartitionIDs []uint16
	Status       NodeStatus
}

func (n *Node) AdminAddr() string { return fmt.Sprintf("%s:%d", n.Host, n.AdminPort) }

func (n *Node) clone() *Node {
	cp := *n
	cp.PartitionIDs = append([]uint16(nil), n.PartitionIDs...)
	return &cp
}

// Cluster is the authoritative topology: node-id-keyed set of nodes whose
// partitionIDs must partition [0, P) disjointly and exhaustively.
type Cluster struct {
	Name  string
	Nodes map[uint16]*Node
}

func NewCluster(name string) *Cluster {
	return &Cluster{Name: name, Nodes: make(map[uint16]*Node)}
}

// Clone deep-copies the cluster; rebalance choreography builds "temp"
// intermediate clusters from a clone rather than mutating a shared one.
func (c *Cluster) Clone() *Cluster {
	cp := &Cluster{Name: c.Name, Nodes: make(map[uint16]*Node, len(c.Nodes))}
	for id, n := range c.Nodes {
		cp.Nodes[id] = n.clone()
	}
	return cp
}

// NodeIDs returns node IDs in ascending order; the XML codec and the
// rebalance choreography iterate nodes in this order.
func (c *Cluster) NodeIDs() []uint16 {
	ids := make([]uint16, 0, len(c.Nodes))
	for id := range c.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumPartitions returns the size of the partition space, i.e. 1 +
// max(partitionID) across all nodes.
func (c *Cluster) NumPartitions() int {
	max := -1
	for _, n := range c.Nodes {
		for _, p := range n.PartitionIDs {
			if int(p) > max {
				max = int(p)
			}
		}
	}
	return max + 1
}

// Validate checks the partitioning invariant: node IDs unique (guaranteed
// by the map), and the union of partitionIDs is exactly [0, P) with no
// overlaps.
func (c *Cluster) Validate() error {
	p := c.NumPartitions()
	seen := make([]bool, p)
	for _, n := range c.Nodes {
		for _, pid := range n.PartitionIDs {
			if int(pid) >= p {
				return &cos.ErrInvalidRequest{Reason: fmt.Sprintf("node %d: partition %d out of range [0,%d)", n.ID, pid, p)}
			}
			if seen[pid] {
				return &cos.ErrInvalidRequest{Reason: fmt.Sprintf("partition %d owned by more than one node", pid)}
			}
			seen[pid] = true
		}
	}
	for pid, ok := range seen {
		if !ok {
			return &cos.ErrInvalidRequest{Reason: fmt.Sprintf("partition %d has no owner", pid)}
		}
	}
	return nil
}

// OwnerOf returns the node ID that owns the given partition, or false if
// the cluster's partition map doesn't cover it (a transient state during
// rebalance propagation).
func (c *Cluster) OwnerOf(partition uint16) (uint16, bool) {
	for _, n := range c.Nodes {
		for _, pid := range n.PartitionIDs {
			if pid == partition {
				return n.ID, true
			}
		}
	}
	return 0, false
}

// StoreDefinition captures replication and consistency knobs for one named
// store, independent of the underlying storage engine.
type StoreDefinition struct {
	Name             string
	Type             string
	ReplicationFactor uint8
	PreferredReads   uint8
	RequiredReads    uint8
	PreferredWrites  uint8
	RequiredWrites   uint8
	KeySerializer    string
	ValueSerializer  string
}

// Validate enforces 1 <= required <= preferred <= replicationFactor <=
// numNodes, independently for the read and write knobs.
func (sd *StoreDefinition) Validate(numNodes int) error {
	check := func(required, preferred uint8, label string) error {
		if !(1 <= required && required <= preferred && preferred <= sd.ReplicationFactor && int(sd.ReplicationFactor) <= numNodes) {
			return &cos.ErrInvalidRequest{Reason: fmt.Sprintf(
				"store %q: invalid %s quorum (required=%d preferred=%d rf=%d nodes=%d)",
				sd.Name, label, required, preferred, sd.ReplicationFactor, numNodes)}
		}
		return nil
	}
	if err := check(sd.RequiredReads, sd.PreferredReads, "read"); err != nil {
		return err
	}
	return check(sd.RequiredWrites, sd.PreferredWrites, "write")
}
