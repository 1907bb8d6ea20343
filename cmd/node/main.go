// Command node runs one cluster member: it opens the local metadata and
// data stores, builds the routing table from cluster.xml, and serves the
// admin wire protocol on the configured admin port.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/karrick/godirwalk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clusterkv/clusterkv/cmn/nlog"
	"github.com/clusterkv/clusterkv/config"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/metrics"
	"github.com/clusterkv/clusterkv/ring"
	"github.com/clusterkv/clusterkv/slop"
	"github.com/clusterkv/clusterkv/store"
	"github.com/clusterkv/clusterkv/wire"
)

type daemon struct {
	cfg    config.Config
	meta   *metadata.Store
	router *ring.Router
	stores map[string]*slop.Store
	mx     *metrics.Metrics
	reg    *prometheus.Registry
}

func main() {
	cfgPath := flag.String("config", "", "path to node config JSON")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve /metrics on this address")
	nlog.InitFlags(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		nlog.Errorf("config: %v", err)
		os.Exit(1)
	}

	d, err := newDaemon(cfg)
	if err != nil {
		nlog.Errorf("bootstrap: %v", err)
		os.Exit(1)
	}
	defer d.meta.Close()

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{}))
		go func() {
			nlog.Errorf("metrics server: %v", http.ListenAndServe(*metricsAddr, mux))
		}()
	}

	addr := fmt.Sprintf(":%d", cfg.AdminPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		nlog.Errorf("listen %s: %v", addr, err)
		os.Exit(1)
	}
	color.Green("node %d listening for admin connections on %s", cfg.NodeID, ln.Addr())

	srv := &wire.Server{
		NodeID:  cfg.NodeID,
		Meta:    d.meta,
		Stores:  d.lookupStore,
		Router:  func() *ring.Router { return d.router },
		Metrics: d.mx,
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			nlog.Warningf("accept: %v", err)
			continue
		}
		go func() {
			if err := srv.Serve(conn); err != nil {
				nlog.Infof("connection from %s closed: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func newDaemon(cfg config.Config) (*daemon, error) {
	metaDir := filepath.Join(cfg.Home, "metadata")
	if err := os.MkdirAll(metaDir, 0o755); err != nil {
		return nil, err
	}
	meta, err := metadata.New(cfg.NodeID, filepath.Join(metaDir, "meta.db"))
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	d := &daemon{cfg: cfg, meta: meta, stores: make(map[string]*slop.Store), reg: reg, mx: metrics.New(reg)}

	cluster, _, err := meta.GetCluster()
	if err == nil {
		router, rerr := ring.NewRouter(cluster)
		if rerr != nil {
			return nil, rerr
		}
		d.router = router
	}

	dataDir := filepath.Join(cfg.Home, "data")
	os.MkdirAll(dataDir, 0o755)
	_ = godirwalk.Walk(dataDir, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() && filepath.Dir(path) == dataDir {
				name := filepath.Base(path)
				if err := d.openStore(name); err != nil {
					nlog.Warningf("skipping store dir %s: %v", name, err)
				}
			}
			return nil
		},
		Unsorted: true,
	})

	return d, nil
}

func (d *daemon) openStore(name string) error {
	dir := filepath.Join(d.cfg.Home, "data", name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	inner, err := store.NewDisk(name, filepath.Join(dir, "data.db"))
	if err != nil {
		return err
	}
	slopDB, err := store.NewDisk(name+".slop", filepath.Join(dir, "slop.db"))
	if err != nil {
		return err
	}
	rf := uint8(1)
	if defn, err := d.meta.GetStore(name); err == nil {
		rf = defn.ReplicationFactor
	}
	d.stores[name] = slop.New(name, d.cfg.NodeID, rf, d.router, inner, slopDB)
	return nil
}

func (d *daemon) lookupStore(name string) (store.Store, bool) {
	s, ok := d.stores[name]
	if !ok {
		return nil, false
	}
	return s, true
}
