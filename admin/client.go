// Package admin implements the admin client (C7): typed remote calls over
// the C6 wire protocol, plus the two-phase rebalance choreography that
// migrates partitions between nodes.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package admin

import (
	"io"
	"net"
	"time"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/cmn/mono"
	"github.com/clusterkv/clusterkv/cmn/nlog"
	"github.com/clusterkv/clusterkv/connpool"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/metrics"
	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/vclock"
	"github.com/clusterkv/clusterkv/wire"
)

// slowCallThreshold is the RPC latency past which call logs a warning. Chosen well above any in-process or same-rack round trip,
// so only a genuinely stalled peer or a pool under contention trips it.
const slowCallThreshold = 250 * time.Millisecond

// Client issues admin RPCs to peer nodes and drives rebalance choreography
// with this node as either the partition-stealing or partition-returning
// party. The choreography reads its starting topology out of Meta — the
// local metadata store, never a peer's — since the wire protocol has no
// opcode to pull cluster.xml back off another node.
type Client struct {
	NodeID  uint16
	Meta    *metadata.Store
	Pool    *connpool.Registry
	Socket  time.Duration
	Metrics *metrics.Metrics // optional
}

func New(nodeID uint16, meta *metadata.Store, pool *connpool.Registry, socketTimeout time.Duration) *Client {
	return &Client{NodeID: nodeID, Meta: meta, Pool: pool, Socket: socketTimeout}
}

// call runs one request/response round trip against addr: writes opcode and
// request body, reads the response prelude, and on success runs readResp
// against the connection for any success payload. The connection is
// returned to its pool on a clean application-level outcome (including a
// mapped error reply) and discarded on any transport failure.
func (c *Client) call(addr string, op wire.Opcode, writeReq func(net.Conn) error, readResp func(net.Conn) error) error {
	start := mono.NanoTime()
	defer func() {
		if d := mono.Since(start); d > slowCallThreshold {
			nlog.Warningf("admin: %s to %s took %s", op, addr, d)
		}
	}()

	pool := c.Pool.For(addr)
	conn, err := pool.Get()
	if err != nil {
		return err
	}
	if c.Socket > 0 {
		conn.SetDeadline(time.Now().Add(c.Socket))
	}

	fail := func(err error) error {
		pool.Discard(conn)
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &cos.ErrTimeout{Op: addr}
		}
		return &cos.ErrIO{Cause: err}
	}

	if err := wire.WriteOpcode(conn, op); err != nil {
		return fail(err)
	}
	if writeReq != nil {
		if err := writeReq(conn); err != nil {
			return fail(err)
		}
	}
	if err := wire.ReadPrelude(conn); err != nil {
		if wire.IsMappedError(err) {
			pool.Put(conn)
			return err
		}
		return fail(err)
	}
	if readResp != nil {
		if err := readResp(conn); err != nil {
			return fail(err)
		}
	}
	pool.Put(conn)
	return nil
}

func addrOf(c *ring.Cluster, nodeID uint16) (string, error) {
	n, ok := c.Nodes[nodeID]
	if !ok {
		return "", &cos.ErrInvalidRequest{Reason: "unknown node id in cluster"}
	}
	return n.AdminAddr(), nil
}

// UpdateClusterMetaData pushes cluster's XML encoding to targetAddr under
// metadataKey (cluster.xml or old.cluster.xml).
func (c *Client) UpdateClusterMetaData(targetAddr string, cluster *ring.Cluster, metadataKey string) error {
	xml, err := ring.MarshalClusterXML(cluster)
	if err != nil {
		return err
	}
	return c.call(targetAddr, wire.OpUpdateClusterMetadata, func(conn net.Conn) error {
		if err := wire.WriteString(conn, metadataKey); err != nil {
			return err
		}
		return wire.WriteString(conn, string(xml))
	}, nil)
}

// UpdateStoresMetaData pushes a stores.xml encoding of defs to targetAddr.
func (c *Client) UpdateStoresMetaData(targetAddr string, defs []*ring.StoreDefinition) error {
	xml, err := ring.MarshalStoresXML(defs)
	if err != nil {
		return err
	}
	return c.call(targetAddr, wire.OpUpdateStoresMetadata, func(conn net.Conn) error {
		return wire.WriteString(conn, string(xml))
	}, nil)
}

func (c *Client) SetRebalancingStateAndRestart(targetAddr string) error {
	if err := c.call(targetAddr, wire.OpRebalancingServerMode, nil, nil); err != nil {
		return err
	}
	return c.RestartServices(targetAddr)
}

func (c *Client) SetNormalStateAndRestart(targetAddr string) error {
	if err := c.call(targetAddr, wire.OpNormalServerMode, nil, nil); err != nil {
		return err
	}
	return c.RestartServices(targetAddr)
}

func (c *Client) RestartServices(targetAddr string) error {
	return c.call(targetAddr, wire.OpRestartServices, nil, nil)
}

// RedirectGetResult is one sibling version returned by RedirectGet.
type RedirectGetResult struct {
	Value   []byte
	Version vclock.Clock
}

// RedirectGet asks targetAddr for every sibling version it holds locally
// for (storeName, key).
func (c *Client) RedirectGet(targetAddr, storeName string, key []byte) ([]RedirectGetResult, error) {
	var out []RedirectGetResult
	err := c.call(targetAddr, wire.OpRedirectGet, func(conn net.Conn) error {
		if err := wire.WriteString(conn, storeName); err != nil {
			return err
		}
		if err := wire.WriteI32(conn, int32(len(key))); err != nil {
			return err
		}
		_, err := conn.Write(key)
		return err
	}, func(conn net.Conn) error {
		n, err := wire.ReadI32(conn)
		if err != nil {
			return err
		}
		for i := int32(0); i < n; i++ {
			blob, err := wire.ReadBytes(conn)
			if err != nil {
				return err
			}
			vc, value, err := splitClockAndValue(blob)
			if err != nil {
				return err
			}
			out = append(out, RedirectGetResult{Value: value, Version: vc})
		}
		return nil
	})
	return out, err
}

func splitClockAndValue(blob []byte) (vclock.Clock, []byte, error) {
	if len(blob) < 2 {
		return vclock.Clock{}, nil, &cos.ErrInvalidClockFormat{Reason: "truncated valueWithClock"}
	}
	n := int(blob[0])<<8 | int(blob[1])
	clockLen := 2 + n*10 + 8
	if len(blob) < clockLen {
		return vclock.Clock{}, nil, &cos.ErrInvalidClockFormat{Reason: "truncated valueWithClock"}
	}
	vc, err := vclock.FromBytes(blob[:clockLen])
	if err != nil {
		return vclock.Clock{}, nil, err
	}
	return vc, blob[clockLen:], nil
}

// PipeGetAndPutStreams opens one socket to fromAddr and one to toAddr,
// issues GET_PARTITION_AS_STREAM on the first and PUT_PARTITION_AS_STREAM on
// the second, and pumps tuples from source to sink until the source's
// stream terminator, then forwards the terminator to the sink. A partial-
// pipe IO error closes both sockets without returning either to its pool.
func (c *Client) PipeGetAndPutStreams(fromAddr, toAddr, storeName string, partitions []uint16) error {
	if c.Metrics != nil {
		c.Metrics.RebalanceInFlight.Inc()
		defer c.Metrics.RebalanceInFlight.Dec()
	}
	start := mono.NanoTime()
	defer func() {
		nlog.Infof("admin: piped %d partitions of %s from %s to %s in %s", len(partitions), storeName, fromAddr, toAddr, mono.Since(start))
	}()
	fromPool := c.Pool.For(fromAddr)
	src, err := fromPool.Get()
	if err != nil {
		return err
	}
	toPool := c.Pool.For(toAddr)
	sink, err := toPool.Get()
	if err != nil {
		fromPool.Discard(src)
		return err
	}

	abort := func(err error) error {
		fromPool.Discard(src)
		toPool.Discard(sink)
		return &cos.ErrIO{Cause: err}
	}

	if c.Socket > 0 {
		src.SetDeadline(time.Now().Add(c.Socket))
		sink.SetDeadline(time.Now().Add(c.Socket))
	}

	if err := wire.WriteOpcode(src, wire.OpGetPartitionAsStream); err != nil {
		return abort(err)
	}
	if err := wire.WriteString(src, storeName); err != nil {
		return abort(err)
	}
	if err := wire.WriteI32(src, int32(len(partitions))); err != nil {
		return abort(err)
	}
	for _, p := range partitions {
		if err := wire.WriteI32(src, int32(p)); err != nil {
			return abort(err)
		}
	}
	if err := wire.ReadPrelude(src); err != nil {
		return abort(err)
	}

	if err := wire.WriteOpcode(sink, wire.OpPutPartitionAsStream); err != nil {
		return abort(err)
	}
	if err := wire.WriteString(sink, storeName); err != nil {
		return abort(err)
	}

	for {
		keyLen, err := wire.ReadI32(src)
		if err != nil {
			return abort(err)
		}
		if keyLen == wire.StreamEnd {
			if err := wire.WriteI32(sink, wire.StreamEnd); err != nil {
				return abort(err)
			}
			break
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(src, key); err != nil {
			return abort(err)
		}
		valLen, err := wire.ReadI32(src)
		if err != nil {
			return abort(err)
		}
		val := make([]byte, valLen)
		if _, err := io.ReadFull(src, val); err != nil {
			return abort(err)
		}
		if err := wire.WriteI32(sink, keyLen); err != nil {
			return abort(err)
		}
		if _, err := sink.Write(key); err != nil {
			return abort(err)
		}
		if err := wire.WriteI32(sink, valLen); err != nil {
			return abort(err)
		}
		if _, err := sink.Write(val); err != nil {
			return abort(err)
		}
	}

	if err := wire.ReadPrelude(sink); err != nil {
		return abort(err)
	}
	fromPool.Put(src)
	toPool.Put(sink)
	return nil
}
