// Package connpool implements the admin client's per-destination connection
// pool: a bounded set of long-lived TCP connections to a peer's admin port,
// checked out for the duration of one request and returned on success.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package connpool

import (
	"net"
	"sync"
	"time"

	"github.com/clusterkv/clusterkv/cmn/cos"
)

// Config mirrors the spec's socket pool sizing knobs.
type Config struct {
	MaxConnections    int
	MaxCached         int
	ConnectTimeoutMs  int
	SocketTimeoutMs   int
	CheckoutTimeoutMs int
}

func (c Config) connectTimeout() time.Duration { return time.Duration(c.ConnectTimeoutMs) * time.Millisecond }
func (c Config) socketTimeout() time.Duration  { return time.Duration(c.SocketTimeoutMs) * time.Millisecond }
func (c Config) checkoutTimeout() time.Duration {
	return time.Duration(c.CheckoutTimeoutMs) * time.Millisecond
}

// Pool hands out connections to one destination address. Checkout blocks up
// to Config.CheckoutTimeoutMs if MaxConnections are already outstanding,
// then fails with ErrTimeout. A connection that errors mid-use must be
// discarded via Discard instead of Put, so a broken socket never
// re-enters circulation.
type Pool struct {
	addr string
	cfg  Config

	mu      sync.Mutex
	idle    []net.Conn
	inUse   int
	waiters chan struct{}
}

func New(addr string, cfg Config) *Pool {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 8
	}
	if cfg.MaxCached <= 0 {
		cfg.MaxCached = cfg.MaxConnections
	}
	return &Pool{addr: addr, cfg: cfg, waiters: make(chan struct{}, cfg.MaxConnections)}
}

// Get checks out a connection, dialing a fresh one if none are idle and the
// pool isn't at capacity, else blocking up to the configured checkout
// timeout.
func (p *Pool) Get() (net.Conn, error) {
	deadline := time.Now().Add(p.cfg.checkoutTimeout())
	for {
		p.mu.Lock()
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.inUse++
			p.mu.Unlock()
			return c, nil
		}
		if p.inUse < p.cfg.MaxConnections {
			p.inUse++
			p.mu.Unlock()
			c, err := net.DialTimeout("tcp", p.addr, p.cfg.connectTimeout())
			if err != nil {
				p.mu.Lock()
				p.inUse--
				p.mu.Unlock()
				return nil, &cos.ErrIO{Cause: err}
			}
			return c, nil
		}
		p.mu.Unlock()

		if p.cfg.checkoutTimeout() <= 0 || time.Now().After(deadline) {
			return nil, &cos.ErrTimeout{Op: "connpool checkout " + p.addr}
		}
		time.Sleep(time.Millisecond)
	}
}

// Put returns a healthy connection to the idle set, or closes it if the
// cache is already full.
func (p *Pool) Put(c net.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse--
	if len(p.idle) >= p.cfg.MaxCached {
		c.Close()
		return
	}
	p.idle = append(p.idle, c)
}

// Discard closes a connection that errored mid-use instead of returning it
// to the idle set.
func (p *Pool) Discard(c net.Conn) {
	c.Close()
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.idle {
		c.Close()
	}
	p.idle = nil
}

// Registry is a set of per-destination Pools keyed by admin address, shared
// across admin client instances within a process.
type Registry struct {
	cfg Config
	mu  sync.Mutex
	m   map[string]*Pool
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, m: make(map[string]*Pool)}
}

func (r *Registry) For(addr string) *Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[addr]
	if !ok {
		p = New(addr, r.cfg)
		r.m[addr] = p
	}
	return p
}
