// Package wire implements the admin wire protocol (C6): an opcode-framed
// binary protocol over TCP between nodes. Every request is an opcode byte
// followed by an opcode-specific payload; every response is a
// (retCode, optional errorMessage) prelude followed by an opcode-specific
// success payload.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package wire

import (
	"encoding/binary"
	"io"

	"github.com/clusterkv/clusterkv/cmn/cos"
)

type Opcode byte

const (
	OpUpdateClusterMetadata Opcode = 0x01
	OpUpdateStoresMetadata  Opcode = 0x02
	OpRebalancingServerMode Opcode = 0x03
	OpNormalServerMode      Opcode = 0x04
	OpRestartServices       Opcode = 0x05
	OpRedirectGet           Opcode = 0x06
	OpGetPartitionAsStream  Opcode = 0x07
	OpPutPartitionAsStream  Opcode = 0x08
)

func (o Opcode) String() string {
	switch o {
	case OpUpdateClusterMetadata:
		return "UPDATE_CLUSTER_METADATA"
	case OpUpdateStoresMetadata:
		return "UPDATE_STORES_METADATA"
	case OpRebalancingServerMode:
		return "REBALANCING_SERVER_MODE"
	case OpNormalServerMode:
		return "NORMAL_SERVER_MODE"
	case OpRestartServices:
		return "RESTART_SERVICES"
	case OpRedirectGet:
		return "REDIRECT_GET"
	case OpGetPartitionAsStream:
		return "GET_PARTITION_AS_STREAM"
	case OpPutPartitionAsStream:
		return "PUT_PARTITION_AS_STREAM"
	default:
		return "UNKNOWN_OPCODE"
	}
}

// StreamEnd is the i32 end-of-stream sentinel used by the two streaming
// opcodes.
const StreamEnd int32 = -1

func WriteOpcode(w io.Writer, op Opcode) error {
	_, err := w.Write([]byte{byte(op)})
	return err
}

func ReadOpcode(r io.Reader) (Opcode, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return Opcode(b[0]), nil
}

// WriteString writes a u16-length-prefixed UTF-8 string.
func WriteString(w io.Writer, s string) error {
	if len(s) > 1<<16-1 {
		return &cos.ErrInvalidRequest{Reason: "string exceeds u16 length prefix"}
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(s)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadString reads a u16-length-prefixed UTF-8 string.
func ReadString(r io.Reader) (string, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(hdr[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// WriteI32 writes a big-endian i32.
func WriteI32(w io.Writer, v int32) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(v))
	_, err := w.Write(hdr[:])
	return err
}

// ReadI32 reads a big-endian i32.
func ReadI32(r io.Reader) (int32, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(hdr[:])), nil
}

// WriteBytes writes an i32-length-prefixed byte blob. Negative lengths are
// reserved for stream sentinels and must go through WriteI32 directly.
func WriteBytes(w io.Writer, b []byte) error {
	if err := WriteI32(w, int32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// ReadBytes reads an i32-length-prefixed byte blob.
func ReadBytes(r io.Reader) ([]byte, error) {
	n, err := ReadI32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, &cos.ErrInvalidRequest{Reason: "negative length where a blob was expected"}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
