/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package wire

import (
	"io"

	"github.com/clusterkv/clusterkv/cmn/cos"
)

// RetCode is the i16 response-prelude status. 0 is success; every other
// value is a stable opcode-independent short code for one of the error
// kinds in the error taxonomy (cmn/cos), carried alongside a human message.
type RetCode int16

const (
	CodeOK RetCode = iota
	CodeObsoleteVersion
	CodeInconsistentMetadata
	CodeStoreNotFound
	CodeUnknownMetadataKey
	CodePermissionDenied
	CodeInvalidClockFormat
	CodeInvalidRequest
	CodeIO
	CodeTimeout
	CodeNotSupported
	CodeInternal
)

// WritePrelude serializes the response prelude: retCode, and if nonzero, the
// mapped short code's associated message.
func WritePrelude(w io.Writer, err error) error {
	code, msg := mapErr(err)
	var hdr [2]byte
	hdr[0] = byte(code >> 8)
	hdr[1] = byte(code)
	if _, werr := w.Write(hdr[:]); werr != nil {
		return werr
	}
	if code == CodeOK {
		return nil
	}
	return WriteString(w, msg)
}

// ReadPrelude reads the response prelude, returning nil on success or the
// re-inflated error kind on a nonzero retCode.
func ReadPrelude(r io.Reader) error {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	code := RetCode(int16(hdr[0])<<8 | int16(hdr[1]))
	if code == CodeOK {
		return nil
	}
	msg, err := ReadString(r)
	if err != nil {
		return err
	}
	return codeToErr(code, msg)
}

func mapErr(err error) (RetCode, string) {
	if err == nil {
		return CodeOK, ""
	}
	switch err.(type) {
	case *cos.ErrObsoleteVersion:
		return CodeObsoleteVersion, err.Error()
	case *cos.ErrInconsistentMetadata:
		return CodeInconsistentMetadata, err.Error()
	case *cos.ErrStoreNotFound:
		return CodeStoreNotFound, err.Error()
	case *cos.ErrUnknownMetadataKey:
		return CodeUnknownMetadataKey, err.Error()
	case *cos.ErrPermissionDenied:
		return CodePermissionDenied, err.Error()
	case *cos.ErrInvalidClockFormat:
		return CodeInvalidClockFormat, err.Error()
	case *cos.ErrInvalidRequest:
		return CodeInvalidRequest, err.Error()
	case *cos.ErrIO:
		return CodeIO, err.Error()
	case *cos.ErrTimeout:
		return CodeTimeout, err.Error()
	case *cos.ErrNotSupported:
		return CodeNotSupported, err.Error()
	default:
		return CodeInternal, err.Error()
	}
}

// IsMappedError reports whether err is one of the application-level kinds
// this package knows how to frame on the wire — i.e. the peer answered with
// a clean nonzero retCode rather than the connection breaking underneath
// us. The admin client uses this to decide whether a connection is still
// healthy enough to return to its pool.
func IsMappedError(err error) bool {
	switch err.(type) {
	case *cos.ErrObsoleteVersion, *cos.ErrInconsistentMetadata, *cos.ErrStoreNotFound,
		*cos.ErrUnknownMetadataKey, *cos.ErrPermissionDenied, *cos.ErrInvalidClockFormat,
		*cos.ErrInvalidRequest, *cos.ErrNotSupported:
		return true
	default:
		return false
	}
}

func codeToErr(code RetCode, msg string) error {
	switch code {
	case CodeObsoleteVersion:
		return &cos.ErrObsoleteVersion{Key: msg}
	case CodeInconsistentMetadata:
		return &cos.ErrInconsistentMetadata{Key: msg}
	case CodeStoreNotFound:
		return &cos.ErrStoreNotFound{Name: msg}
	case CodeUnknownMetadataKey:
		return &cos.ErrUnknownMetadataKey{Key: msg}
	case CodePermissionDenied:
		return &cos.ErrPermissionDenied{Op: msg}
	case CodeInvalidClockFormat:
		return &cos.ErrInvalidClockFormat{Reason: msg}
	case CodeInvalidRequest:
		return &cos.ErrInvalidRequest{Reason: msg}
	case CodeIO:
		return &cos.ErrIO{Cause: &cos.ErrInvalidRequest{Reason: msg}}
	case CodeTimeout:
		return &cos.ErrTimeout{Op: msg}
	case CodeNotSupported:
		return &cos.ErrNotSupported{Op: msg}
	default:
		return &cos.ErrInvalidRequest{Reason: msg}
	}
}
