/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package wire

import (
	"io"
	"net"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/cmn/nlog"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/metrics"
	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/store"
	"github.com/clusterkv/clusterkv/vclock"
)

// StoreLookup resolves a store by name for the opcodes that need direct
// access to its underlying Store (REDIRECT_GET and the two streaming
// opcodes). The node daemon owns the actual store instances; the server
// only ever borrows one by name.
type StoreLookup func(name string) (store.Store, bool)

// Server is the C6/C8 request handler: it decodes opcodes off a connection,
// applies them against the metadata store and named stores, and frames the
// response. One Server is shared by every accepted admin connection.
type Server struct {
	NodeID  uint16
	Meta    *metadata.Store
	Stores  StoreLookup
	Router  func() *ring.Router
	Restart func() error // process-specific hook; RESTART_SERVICES is a no-op if nil
	Metrics *metrics.Metrics // optional; nil disables instrumentation
}

// Serve reads and handles opcode-framed requests off conn until the peer
// closes it or a transport error occurs. One admin connection may carry
// many sequential requests, matching the pooled-connection model in §4.7.
func (s *Server) Serve(conn net.Conn) error {
	for {
		op, err := ReadOpcode(conn)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.handle(conn, op); err != nil {
			nlog.Warningf("wire: %s from %s: %v", op, conn.RemoteAddr(), err)
			return err
		}
	}
}

func (s *Server) handle(conn net.Conn, op Opcode) error {
	if s.Metrics != nil {
		s.Metrics.OpRequests.WithLabelValues(op.String()).Inc()
	}
	err := s.dispatch(conn, op)
	if err != nil && s.Metrics != nil {
		s.Metrics.OpErrors.WithLabelValues(op.String()).Inc()
	}
	return err
}

func (s *Server) dispatch(conn net.Conn, op Opcode) error {
	switch op {
	case OpUpdateClusterMetadata:
		return s.handleUpdateClusterMetadata(conn)
	case OpUpdateStoresMetadata:
		return s.handleUpdateStoresMetadata(conn)
	case OpRebalancingServerMode:
		return s.handleSetState(conn, metadata.RebalancingState)
	case OpNormalServerMode:
		return s.handleSetState(conn, metadata.NormalState)
	case OpRestartServices:
		return s.handleRestart(conn)
	case OpRedirectGet:
		return s.handleRedirectGet(conn)
	case OpGetPartitionAsStream:
		return s.handleGetPartitionAsStream(conn)
	case OpPutPartitionAsStream:
		return s.handlePutPartitionAsStream(conn)
	default:
		return WritePrelude(conn, &cos.ErrInvalidRequest{Reason: "unknown opcode"})
	}
}

func (s *Server) handleUpdateClusterMetadata(conn net.Conn) error {
	key, err := ReadString(conn)
	if err != nil {
		return err
	}
	xml, err := ReadString(conn)
	if err != nil {
		return err
	}
	if _, err := ring.UnmarshalClusterXML([]byte(xml)); err != nil {
		return WritePrelude(conn, &cos.ErrInvalidRequest{Reason: "malformed cluster xml: " + err.Error()})
	}
	_, err = s.Meta.PutForce(key, xml)
	return WritePrelude(conn, err)
}

func (s *Server) handleUpdateStoresMetadata(conn net.Conn) error {
	xml, err := ReadString(conn)
	if err != nil {
		return err
	}
	if _, err := ring.UnmarshalStoresXML([]byte(xml)); err != nil {
		return WritePrelude(conn, &cos.ErrInvalidRequest{Reason: "malformed stores xml: " + err.Error()})
	}
	_, err = s.Meta.PutForce(metadata.KeyStores, xml)
	return WritePrelude(conn, err)
}

func (s *Server) handleSetState(conn net.Conn, state metadata.ServerState) error {
	_, err := s.Meta.PutForce(metadata.KeyServerState, string(state))
	return WritePrelude(conn, err)
}

func (s *Server) handleRestart(conn net.Conn) error {
	var err error
	if s.Restart != nil {
		err = s.Restart()
	}
	return WritePrelude(conn, err)
}

// handleRedirectGet answers a client's get(k) that landed on the wrong node
// by looking the key up locally and returning every sibling version found.
func (s *Server) handleRedirectGet(conn net.Conn) error {
	name, err := ReadString(conn)
	if err != nil {
		return err
	}
	keyLen, err := ReadI32(conn)
	if err != nil {
		return err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(conn, key); err != nil {
		return err
	}

	st, ok := s.Stores(name)
	if !ok {
		return WritePrelude(conn, &cos.ErrStoreNotFound{Name: name})
	}
	vs, err := st.Get(key)
	if err != nil {
		return WritePrelude(conn, err)
	}
	if err := WritePrelude(conn, nil); err != nil {
		return err
	}
	if err := WriteI32(conn, int32(len(vs))); err != nil {
		return err
	}
	for _, v := range vs {
		blob := append(v.Version.ToBytes(), v.Value...)
		if err := WriteBytes(conn, blob); err != nil {
			return err
		}
	}
	return nil
}

// handleGetPartitionAsStream walks the named store's entries, streaming out
// every (key, valueWithClock) pair whose primary partition is in the
// requested set.
func (s *Server) handleGetPartitionAsStream(conn net.Conn) error {
	name, err := ReadString(conn)
	if err != nil {
		return err
	}
	nParts, err := ReadI32(conn)
	if err != nil {
		return err
	}
	want := make(map[uint16]bool, nParts)
	for i := int32(0); i < nParts; i++ {
		p, err := ReadI32(conn)
		if err != nil {
			return err
		}
		want[uint16(p)] = true
	}

	st, ok := s.Stores(name)
	if !ok {
		return WritePrelude(conn, &cos.ErrStoreNotFound{Name: name})
	}
	it, err := st.Entries()
	if err != nil {
		return WritePrelude(conn, err)
	}
	defer it.Close()

	router := s.Router()
	if err := WritePrelude(conn, nil); err != nil {
		return err
	}
	for it.Next() {
		e := it.Entry()
		parts := router.PartitionList(e.Key, 1)
		if len(parts) == 0 || !want[parts[0]] {
			continue
		}
		if err := WriteI32(conn, int32(len(e.Key))); err != nil {
			return err
		}
		if _, err := conn.Write(e.Key); err != nil {
			return err
		}
		blob := append(e.Value.Version.ToBytes(), e.Value.Value...)
		if err := WriteI32(conn, int32(len(blob))); err != nil {
			return err
		}
		if _, err := conn.Write(blob); err != nil {
			return err
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return WriteI32(conn, StreamEnd)
}

// handlePutPartitionAsStream applies each streamed (key, valueWithClock)
// tuple to the named store's underlying put. ObsoleteVersion is expected
// under idempotent re-delivery and is swallowed; every other error aborts
// the stream with a nonzero retCode.
func (s *Server) handlePutPartitionAsStream(conn net.Conn) error {
	name, err := ReadString(conn)
	if err != nil {
		return err
	}
	st, ok := s.Stores(name)
	if !ok {
		return WritePrelude(conn, &cos.ErrStoreNotFound{Name: name})
	}

	var obsolete int
	for {
		keyLen, err := ReadI32(conn)
		if err != nil {
			return err
		}
		if keyLen == StreamEnd {
			break
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(conn, key); err != nil {
			return err
		}
		valLen, err := ReadI32(conn)
		if err != nil {
			return err
		}
		blob := make([]byte, valLen)
		if _, err := io.ReadFull(conn, blob); err != nil {
			return err
		}
		clock, value, err := splitClockAndValue(blob)
		if err != nil {
			return WritePrelude(conn, err)
		}
		if err := st.Put(key, store.Versioned{Value: value, Version: clock}); err != nil {
			if _, ok := err.(*cos.ErrObsoleteVersion); ok {
				obsolete++
				if s.Metrics != nil {
					s.Metrics.StreamObsolete.Inc()
				}
				continue
			}
			return WritePrelude(conn, err)
		}
	}
	if obsolete > 0 {
		nlog.Infof("wire: put-partition-as-stream %s: swallowed %d obsolete version(s)", name, obsolete)
	}
	return WritePrelude(conn, nil)
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
	clock, err := vclock.FromBytes(blob[:clockLen])
	if err != nil {
		return vclock.Clock{}, nil, err
	}
	return clock, blob[clockLen:], nil
}
