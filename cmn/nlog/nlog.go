// Package nlog is the cluster-wide logger: leveled, timestamped, with a
// caller-file:line prefix the way aistore's own nlog annotates every line.
// Unlike the teacher's production file-rotation engine this one is scoped
// to what the admin/rebalance/metadata paths need: leveled calls, optional
// stderr mirroring, and a Flush used at shutdown.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package nlog

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

var (
	mu           sync.Mutex
	out          io.Writer = os.Stderr
	alsoToStderr bool
	toStderr     = true
)

// InitFlags registers the -logtostderr/-alsologtostderr flags the way
// aistore's nlog.InitFlags does, for daemons that parse flags at startup.
func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", true, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

// SetOutput redirects file-destined output (used by daemons that want a
// rotated log file instead of stderr); when unset, all severities go to
// stderr, which is the default for tests and the CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	out = w
	mu.Unlock()
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth+1, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 1, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 1, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 1, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 1, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth+1, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 1, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 1, format, args...) }

func log(sev severity, depth int, format string, args ...any) {
	line := sprintf(sev, depth+1, format, args...)
	mu.Lock()
	defer mu.Unlock()
	if toStderr || alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}
	if !toStderr && out != nil && out != io.Writer(os.Stderr) {
		io.WriteString(out, line)
	}
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		fn = filepath.Base(fn)
		b.WriteString(fn)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(ln))
		b.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}
	return b.String()
}

// Flush is a no-op when logging straight to stderr; present for symmetry
// with the teacher's API and for daemons that SetOutput to a *os.File and
// want to fsync on shutdown.
func Flush(exit ...bool) {
	mu.Lock()
	defer mu.Unlock()
	if f, ok := out.(*os.File); ok {
		f.Sync()
		if len(exit) > 0 && exit[0] {
			f.Close()
		}
	}
}
