/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package cos

import (
	"strconv"
	"sync"
	"time"

	"github.com/teris-io/shortid"
)

// Alphabet for generating short diagnostic IDs, mirrors aistore's own
// shortid-based UUID generation (cmn/cos/uuid.go) minus the daemon-ID and
// k8s-proxy-ID length variants this module has no use for.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
)

func initShortID() {
	s, err := shortid.New(1, uuidABC, 1)
	if err != nil {
		s = shortid.MustNew(1, shortid.DefaultABC, 1)
	}
	sid = s
}

// GenUUID returns a short, human-diagnosable ID: used to tag rebalance runs
// in log lines and for slop-record diagnostics, never for the deterministic slop key
// itself (that one is spec-mandated to be a pure function of its inputs).
func GenUUID() string {
	sidOnce.Do(initShortID)
	id, err := sid.Generate()
	if err != nil {
		// shortid's internal tie-breaker counter wrapped; fall back to a
		// coarser but still-unique-enough value rather than failing a
		// caller that just wants a diagnostic tag.
		return "uuid-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id
}
