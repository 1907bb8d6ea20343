// Package mono provides low-level monotonic time helpers, used by the admin
// client to measure RPC and partition-pipe latency.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package mono

import "time"

// NanoTime returns a monotonic nanosecond reading, counted from process
// start. time.Now() already carries a monotonic component on all supported
// platforms, so unlike the runtime.nanotime linkname trick this needs no
// build tag.
func NanoTime() int64 { return int64(time.Since(epoch)) }

var epoch = time.Now()

func Since(start int64) time.Duration { return time.Duration(NanoTime() - start) }
