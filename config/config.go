// Package config loads a node's on-disk configuration: the NODE_ID and
// NODE_HOME environment variables plus a JSON config file at a path the
// caller supplies, mirroring the env-var-plus-JSON layering the rest of the
// ambient stack uses for process config.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package config

import (
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/clusterkv/clusterkv/cmn/cos"
	"github.com/clusterkv/clusterkv/connpool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config is one node's process configuration: identity, home directory, and
// the socket pool sizing the admin client and server both draw from.
type Config struct {
	NodeID  uint16 `json:"node_id"`
	Home    string `json:"home"`
	AdminPort uint16 `json:"admin_port"`

	SocketPool connpool.Config `json:"socket_pool"`
}

const (
	envNodeID = "NODE_ID"
	envHome   = "NODE_HOME"
)

// defaults mirror the kind of numbers a teacher-style config would ship: a
// handful of connections per peer, short timeouts so a stuck peer fails a
// rebalance step fast rather than hanging it.
func defaults() Config {
	return Config{
		AdminPort: 6660,
		SocketPool: connpool.Config{
			MaxConnections:    8,
			MaxCached:         8,
			ConnectTimeoutMs:  1500,
			SocketTimeoutMs:   10000,
			CheckoutTimeoutMs: 5000,
		},
	}
}

// Load reads path as JSON into Config, then applies NODE_ID/NODE_HOME
// environment overrides — the same env-overrides-file layering pattern the
// rest of the ambient stack follows.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, &cos.ErrIO{Cause: err}
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, &cos.ErrInvalidRequest{Reason: "config: " + err.Error()}
		}
	}
	if v := os.Getenv(envNodeID); v != "" {
		id, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return Config{}, &cos.ErrInvalidRequest{Reason: envNodeID + ": " + err.Error()}
		}
		cfg.NodeID = uint16(id)
	}
	if v := os.Getenv(envHome); v != "" {
		cfg.Home = v
	}
	if cfg.Home == "" {
		return Config{}, &cos.ErrInvalidRequest{Reason: "node home directory not set (" + envHome + " or config.home)"}
	}
	return cfg, nil
}
