/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package ring

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// xmlCluster/xmlServer/xmlStores/xmlStore mirror the exact external shape
// from spec §6; Cluster/StoreDefinition stay the in-memory types so the
// rest of the module never deals with XML tags directly.
type xmlCluster struct {
	XMLName xml.Name    `xml:"cluster"`
	Name    string      `xml:"name"`
	Servers []xmlServer `xml:"server"`
}

type xmlServer struct {
	ID         uint16 `xml:"id"`
	Host       string `xml:"host"`
	HTTPPort   uint16 `xml:"http-port"`
	SocketPort uint16 `xml:"socket-port"`
	AdminPort  uint16 `xml:"admin-port"`
	Partitions string `xml:"partitions"`
}

// MarshalClusterXML renders a Cluster to the spec's cluster.xml shape.
// Round-trip-stable: parse-then-serialize of a value produced here is
// byte-identical on a second pass.
func MarshalClusterXML(c *Cluster) ([]byte, error) {
	xc := xmlCluster{Name: c.Name}
	ids := c.NodeIDs()
	for _, id := range ids {
		n := c.Nodes[id]
		parts := make([]string, len(n.PartitionIDs))
		for i, p := range n.PartitionIDs {
			parts[i] = strconv.Itoa(int(p))
		}
		xc.Servers = append(xc.Servers, xmlServer{
			ID: n.ID, Host: n.Host, HTTPPort: n.HTTPPort, SocketPort: n.SocketPort,
			AdminPort: n.AdminPort, Partitions: strings.Join(parts, ", "),
		})
	}
	out, err := xml.MarshalIndent(xc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// UnmarshalClusterXML parses the spec's cluster.xml shape into a Cluster.
// Node status defaults to Available; the wire format carries no status
// field (status is runtime/heartbeat-derived, not persisted topology).
func UnmarshalClusterXML(b []byte) (*Cluster, error) {
	var xc xmlCluster
	if err := xml.Unmarshal(b, &xc); err != nil {
		return nil, err
	}
	c := NewCluster(xc.Name)
	for _, s := range xc.Servers {
		n := &Node{ID: s.ID, Host: s.Host, HTTPPort: s.HTTPPort, SocketPort: s.SocketPort, AdminPort: s.AdminPort, Status: Available}
		for _, tok := range strings.Split(s.Partitions, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			v, err := strconv.Atoi(tok)
			if err != nil {
				return nil, fmt.Errorf("cluster.xml: server %d: bad partition id %q: %w", s.ID, tok, err)
			}
			n.PartitionIDs = append(n.PartitionIDs, uint16(v))
		}
		sort.Slice(n.PartitionIDs, func(i, j int) bool { return n.PartitionIDs[i] < n.PartitionIDs[j] })
		c.Nodes[n.ID] = n
	}
	return c, nil
}

type xmlStores struct {
	XMLName xml.Name   `xml:"stores"`
	Stores  []xmlStore `xml:"store"`
}

type xmlStore struct {
	Name              string `xml:"name"`
	Persistence       string `xml:"persistence"`
	Routing           string `xml:"routing"`
	ReplicationFactor uint8  `xml:"replication-factor"`
	RequiredReads     uint8  `xml:"required-reads"`
	PreferredReads    uint8  `xml:"preferred-reads"`
	RequiredWrites    uint8  `xml:"required-writes"`
	PreferredWrites   uint8  `xml:"preferred-writes"`
	KeySerializer     string `xml:"key-serializer"`
	ValueSerializer   string `xml:"value-serializer"`
}

// StoresRouting is fixed to "server" for this module: the client-side smart
// router is explicitly out of scope (spec §1).
const StoresRouting = "server"

func MarshalStoresXML(defs []*StoreDefinition) ([]byte, error) {
	xs := xmlStores{}
	for _, sd := range defs {
		xs.Stores = append(xs.Stores, xmlStore{
			Name: sd.Name, Persistence: sd.Type, Routing: StoresRouting,
			ReplicationFactor: sd.ReplicationFactor, RequiredReads: sd.RequiredReads,
			PreferredReads: sd.PreferredReads, RequiredWrites: sd.RequiredWrites,
			PreferredWrites: sd.PreferredWrites, KeySerializer: sd.KeySerializer,
			ValueSerializer: sd.ValueSerializer,
		})
	}
	out, err := xml.MarshalIndent(xs, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

func UnmarshalStoresXML(b []byte) ([]*StoreDefinition, error) {
	var xs xmlStores
	if err := xml.Unmarshal(b, &xs); err != nil {
		return nil, err
	}
	out := make([]*StoreDefinition, 0, len(xs.Stores))
	for _, s := range xs.Stores {
		out = append(out, &StoreDefinition{
			Name: s.Name, Type: s.Persistence, ReplicationFactor: s.ReplicationFactor,
			RequiredReads: s.RequiredReads, PreferredReads: s.PreferredReads,
			RequiredWrites: s.RequiredWrites, PreferredWrites: s.PreferredWrites,
			KeySerializer: s.KeySerializer, ValueSerializer: s.ValueSerializer,
		})
	}
	return out, nil
}
