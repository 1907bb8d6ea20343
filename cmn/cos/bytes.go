/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package cos

import "unsafe"

// UnsafeB reinterprets a string's bytes without copying, the way aistore's
// cos.UnsafeB does for hot-path hashing of routing keys.
func UnsafeB(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// UnsafeS is the inverse of UnsafeB.
func UnsafeS(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

func BCopy(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
