/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package admin

import (
	"sort"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/cmn/nlog"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/ring"
)

// StealPartitionsFromCluster drives the choreography in which this node (T)
// takes over partitions from other nodes. newCluster is the operator-planned
// final topology (C_new) — the spec names an internal
// ClusterUtils.updateClusterStealPartitions derivation but doesn't specify
// its rule, so here the caller supplies C_new directly and this method
// handles getting the cluster there safely, one donor at a time. Only
// partitions that newCluster assigns to this node are moved; partitions
// that newCluster moves between other nodes stay where they are.
func (c *Client) StealPartitionsFromCluster(storeName string, newCluster *ring.Cluster) (err error) {
	runID := cos.GenUUID()
	nlog.Infof("admin: steal[%s] store=%s node=%d starting", runID, storeName, c.NodeID)
	defer func() {
		if err != nil {
			nlog.Warningf("admin: steal[%s] store=%s node=%d failed: %v", runID, storeName, c.NodeID, err)
		} else {
			nlog.Infof("admin: steal[%s] store=%s node=%d complete", runID, storeName, c.NodeID)
		}
	}()

	oldCluster, _, err := c.Meta.GetCluster()
	if err != nil {
		return err
	}
	selfAddr, err := addrOf(oldCluster, c.NodeID)
	if err != nil {
		return err
	}

	if err := c.UpdateClusterMetaData(selfAddr, oldCluster, metadata.KeyOldCluster); err != nil {
		return err
	}
	if err := c.SetRebalancingStateAndRestart(selfAddr); err != nil {
		return err
	}

	unionIDs := unionNodeIDs(oldCluster, newCluster)
	cur := oldCluster

	for _, donorID := range oldCluster.NodeIDs() {
		if donorID == c.NodeID {
			continue
		}
		donorOld, ok := cur.Nodes[donorID]
		if !ok {
			continue
		}
		// stealList: the donor's current partitions that newCluster gives to
		// this node.
		var selfNew []uint16
		if n, ok := newCluster.Nodes[c.NodeID]; ok {
			selfNew = n.PartitionIDs
		}
		stealList := subtract(donorOld.PartitionIDs, subtract(donorOld.PartitionIDs, selfNew))
		if len(stealList) == 0 {
			continue
		}

		tempCluster := cur.Clone()
		tempCluster.Nodes[donorID].PartitionIDs = subtract(tempCluster.Nodes[donorID].PartitionIDs, stealList)
		tempCluster.Nodes[c.NodeID].PartitionIDs = sortedUnion(tempCluster.Nodes[c.NodeID].PartitionIDs, stealList)

		if err := c.propagate(cur, newCluster, unionIDs, tempCluster); err != nil {
			return err
		}
		if err := c.PipeGetAndPutStreams(donorOld.AdminAddr(), selfAddr, storeName, stealList); err != nil {
			return err
		}
		cur = tempCluster
	}

	return c.SetNormalStateAndRestart(selfAddr)
}

// ReturnPartitionsToCluster drives the symmetric choreography in which this
// node (T) is leaving and hands its partitions off to newCluster's owners.
// Partitions that newCluster moves between other nodes are not transferred.
func (c *Client) ReturnPartitionsToCluster(storeName string, newCluster *ring.Cluster) (err error) {
	runID := cos.GenUUID()
	nlog.Infof("admin: return[%s] store=%s node=%d starting", runID, storeName, c.NodeID)
	defer func() {
		if err != nil {
			nlog.Warningf("admin: return[%s] store=%s node=%d failed: %v", runID, storeName, c.NodeID, err)
		} else {
			nlog.Infof("admin: return[%s] store=%s node=%d complete", runID, storeName, c.NodeID)
		}
	}()

	oldCluster, _, err := c.Meta.GetCluster()
	if err != nil {
		return err
	}
	selfAddr, err := addrOf(oldCluster, c.NodeID)
	if err != nil {
		return err
	}

	unionIDs := unionNodeIDs(oldCluster, newCluster)
	cur := oldCluster

	for _, recipientID := range oldCluster.NodeIDs() {
		if recipientID == c.NodeID {
			continue
		}
		recipientOld, ok := cur.Nodes[recipientID]
		if !ok {
			continue
		}
		recipientNew, ok := newCluster.Nodes[recipientID]
		if !ok {
			continue
		}
		// intake: this node's current partitions that newCluster gives to the
		// recipient.
		selfCur := cur.Nodes[c.NodeID].PartitionIDs
		intake := subtract(selfCur, subtract(selfCur, recipientNew.PartitionIDs))
		if len(intake) == 0 {
			continue
		}
		recipientAddr := recipientOld.AdminAddr()

		if err := c.UpdateClusterMetaData(recipientAddr, cur, metadata.KeyOldCluster); err != nil {
			return err
		}

		tempCluster := cur.Clone()
		tempCluster.Nodes[c.NodeID].PartitionIDs = subtract(tempCluster.Nodes[c.NodeID].PartitionIDs, intake)
		tempCluster.Nodes[recipientID].PartitionIDs = sortedUnion(tempCluster.Nodes[recipientID].PartitionIDs, intake)

		if err := c.propagate(cur, newCluster, unionIDs, tempCluster); err != nil {
			return err
		}
		if err := c.SetRebalancingStateAndRestart(recipientAddr); err != nil {
			return err
		}
		if err := c.PipeGetAndPutStreams(selfAddr, recipientAddr, storeName, intake); err != nil {
			return err
		}
		if err := c.SetNormalStateAndRestart(recipientAddr); err != nil {
			return err
		}
		cur = tempCluster
	}
	return nil
}

// propagate pushes tempCluster's cluster.xml to the union of old and new
// node sets — not just updated.getNodes() — so a node that is departing in
// newCluster still sees the intermediate state it needs to finish draining.
func (c *Client) propagate(oldCluster, newCluster *ring.Cluster, unionIDs []uint16, tempCluster *ring.Cluster) error {
	for _, id := range unionIDs {
		addr := addrFromEither(oldCluster, newCluster, id)
		if addr == "" {
			continue
		}
		if err := c.UpdateClusterMetaData(addr, tempCluster, metadata.KeyCluster); err != nil {
			return err
		}
	}
	return nil
}

func addrFromEither(a, b *ring.Cluster, id uint16) string {
	if n, ok := a.Nodes[id]; ok {
		return n.AdminAddr()
	}
	if n, ok := b.Nodes[id]; ok {
		return n.AdminAddr()
	}
	return ""
}

func unionNodeIDs(a, b *ring.Cluster) []uint16 {
	seen := make(map[uint16]bool, len(a.Nodes)+len(b.Nodes))
	for id := range a.Nodes {
		seen[id] = true
	}
	for id := range b.Nodes {
		seen[id] = true
	}
	out := make([]uint16, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// subtract returns a freshly-allocated, sorted list of the elements of a
// not present in b. Always fresh: the rebalance choreography builds a new
// stealList per recipient rather than mutating a shared one.
func subtract(a, b []uint16) []uint16 {
	inB := make(map[uint16]bool, len(b))
	for _, v := range b {
		inB[v] = true
	}
	out := make([]uint16, 0, len(a))
	for _, v := range a {
		if !inB[v] {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedUnion(a, b []uint16) []uint16 {
	seen := make(map[uint16]bool, len(a)+len(b))
	out := make([]uint16, 0, len(a)+len(b))
	for _, v := range append(append([]uint16{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
