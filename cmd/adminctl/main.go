// Command adminctl is an operator CLI for the admin wire protocol: push
// metadata, flip a node's server state, redirect a get, or drive a
// partition rebalance between two cluster topologies described as
// cluster.xml files on disk.
/*
 * Copyright (c) 2026, ClusterKV Authors. All rights reserved.
 */
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/clusterkv/clusterkv/admin"
	"github.com/clusterkv/clusterkv/connpool"
	"github.com/clusterkv/clusterkv/metadata"
	"github.com/clusterkv/clusterkv/ring"
)

var (
	fgreen = color.New(color.FgHiGreen).SprintFunc()
	fred   = color.New(color.FgHiRed).SprintFunc()
	fcyan  = color.New(color.FgHiCyan).SprintFunc()
)

var (
	addrFlag           = cli.StringFlag{Name: "addr", Usage: "target node's admin address, host:port"}
	storeFlag          = cli.StringFlag{Name: "store", Usage: "store name"}
	keyFlag            = cli.StringFlag{Name: "key", Usage: "key, read as a UTF-8 string"}
	clusterFlag        = cli.StringFlag{Name: "cluster-xml", Usage: "path to a cluster.xml file"}
	storesFlag         = cli.StringFlag{Name: "stores-xml", Usage: "path to a stores.xml file"}
	currentClusterFlag = cli.StringFlag{Name: "current-cluster-xml", Usage: "path to the cluster.xml describing the topology before this rebalance; seeds the operator's local metadata ledger, since the wire protocol has no opcode to read it back off a peer"}
	nodeIDFlag         = cli.UintFlag{Name: "node-id", Usage: "this operator's node id, for the metadata ledger the client reads", Value: 0}
	timeoutFlag        = cli.DurationFlag{Name: "timeout", Usage: "per-call socket timeout", Value: 10 * time.Second}
)

func main() {
	app := cli.NewApp()
	app.Name = "adminctl"
	app.Usage = "drive the cluster admin wire protocol from the command line"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{nodeIDFlag, timeoutFlag}
	app.Commands = []cli.Command{
		updateClusterCmd,
		updateStoresCmd,
		rebalancingModeCmd,
		normalModeCmd,
		restartCmd,
		redirectGetCmd,
		stealCmd,
		returnCmd,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, fred("error: ")+err.Error())
		os.Exit(1)
	}
}

// newClient builds a throwaway admin.Client: adminctl is a one-shot tool, so
// its metadata store is an in-memory stand-in, empty until a command seeds
// it. StealPartitionsFromCluster and ReturnPartitionsToCluster read the
// starting topology out of this *local* store (there is no wire opcode to
// pull cluster.xml back off a peer — the admin protocol only pushes), so
// stealCmd/returnCmd seed it from --current-cluster-xml before calling in.
func newClient(c *cli.Context) *admin.Client {
	meta, err := metadata.New(uint16(c.GlobalUint(nodeIDFlag.Name)), ":memory:")
	if err != nil {
		fmt.Fprintln(os.Stderr, fred("error: ")+err.Error())
		os.Exit(1)
	}
	pool := connpool.NewRegistry(connpool.Config{
		MaxConnections:    4,
		MaxCached:         4,
		ConnectTimeoutMs:  int(c.GlobalDuration(timeoutFlag.Name) / time.Millisecond),
		SocketTimeoutMs:   int(c.GlobalDuration(timeoutFlag.Name) / time.Millisecond),
		CheckoutTimeoutMs: int(c.GlobalDuration(timeoutFlag.Name) / time.Millisecond),
	})
	return admin.New(uint16(c.GlobalUint(nodeIDFlag.Name)), meta, pool, c.GlobalDuration(timeoutFlag.Name))
}

func readClusterXML(path string) (*ring.Cluster, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ring.UnmarshalClusterXML(b)
}

func readStoresXML(path string) ([]*ring.StoreDefinition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ring.UnmarshalStoresXML(b)
}

func done(c *cli.Context, msg string) {
	fmt.Fprintln(c.App.Writer, fgreen("OK ")+msg)
}

var updateClusterCmd = cli.Command{
	Name:  "update-cluster",
	Usage: "push a cluster.xml file to a node under the given metadata key",
	Flags: []cli.Flag{addrFlag, clusterFlag, cli.StringFlag{Name: "key", Value: metadata.KeyCluster, Usage: "metadata key: cluster.xml or old.cluster.xml"}},
	Action: func(c *cli.Context) error {
		cluster, err := readClusterXML(c.String(clusterFlag.Name))
		if err != nil {
			return err
		}
		cl := newClient(c)
		if err := cl.UpdateClusterMetaData(c.String(addrFlag.Name), cluster, c.String("key")); err != nil {
			return err
		}
		done(c, fmt.Sprintf("pushed %s to %s", c.String("key"), c.String(addrFlag.Name)))
		return nil
	},
}

var updateStoresCmd = cli.Command{
	Name:  "update-stores",
	Usage: "push a stores.xml file to a node",
	Flags: []cli.Flag{addrFlag, storesFlag},
	Action: func(c *cli.Context) error {
		defs, err := readStoresXML(c.String(storesFlag.Name))
		if err != nil {
			return err
		}
		cl := newClient(c)
		if err := cl.UpdateStoresMetaData(c.String(addrFlag.Name), defs); err != nil {
			return err
		}
		done(c, fmt.Sprintf("pushed stores.xml to %s", c.String(addrFlag.Name)))
		return nil
	},
}

var rebalancingModeCmd = cli.Command{
	Name:  "rebalancing-mode",
	Usage: "set a node to REBALANCING and restart its services",
	Flags: []cli.Flag{addrFlag},
	Action: func(c *cli.Context) error {
		cl := newClient(c)
		if err := cl.SetRebalancingStateAndRestart(c.String(addrFlag.Name)); err != nil {
			return err
		}
		done(c, c.String(addrFlag.Name)+" is now REBALANCING")
		return nil
	},
}

var normalModeCmd = cli.Command{
	Name:  "normal-mode",
	Usage: "set a node to NORMAL and restart its services",
	Flags: []cli.Flag{addrFlag},
	Action: func(c *cli.Context) error {
		cl := newClient(c)
		if err := cl.SetNormalStateAndRestart(c.String(addrFlag.Name)); err != nil {
			return err
		}
		done(c, c.String(addrFlag.Name)+" is now NORMAL")
		return nil
	},
}

var restartCmd = cli.Command{
	Name:  "restart",
	Usage: "send RESTART_SERVICES to a node",
	Flags: []cli.Flag{addrFlag},
	Action: func(c *cli.Context) error {
		cl := newClient(c)
		if err := cl.RestartServices(c.String(addrFlag.Name)); err != nil {
			return err
		}
		done(c, c.String(addrFlag.Name)+" restarted")
		return nil
	},
}

var redirectGetCmd = cli.Command{
	Name:  "redirect-get",
	Usage: "fetch every sibling version of a key directly from the node that holds it",
	Flags: []cli.Flag{addrFlag, storeFlag, keyFlag},
	Action: func(c *cli.Context) error {
		cl := newClient(c)
		out, err := cl.RedirectGet(c.String(addrFlag.Name), c.String(storeFlag.Name), []byte(c.String(keyFlag.Name)))
		if err != nil {
			return err
		}
		if len(out) == 0 {
			fmt.Fprintln(c.App.Writer, fcyan("(no versions found)"))
			return nil
		}
		for i, v := range out {
			fmt.Fprintf(c.App.Writer, "[%d] %s  clock=%s\n", i, string(v.Value), v.Version.String())
		}
		return nil
	},
}

// seedCurrentCluster reads --current-cluster-xml and force-writes it into
// cl's local metadata store under cluster.xml, the key
// StealPartitionsFromCluster/ReturnPartitionsToCluster read as C_old.
func seedCurrentCluster(c *cli.Context, cl *admin.Client) error {
	path := c.String(currentClusterFlag.Name)
	if path == "" {
		return fmt.Errorf("--%s is required: the local metadata ledger has no other way to learn the pre-rebalance topology", currentClusterFlag.Name)
	}
	cluster, err := readClusterXML(path)
	if err != nil {
		return err
	}
	xml, err := ring.MarshalClusterXML(cluster)
	if err != nil {
		return err
	}
	_, err = cl.Meta.PutForce(metadata.KeyCluster, string(xml))
	return err
}

var stealCmd = cli.Command{
	Name:  "steal",
	Usage: "steal this node's partitions from the cluster described by --current-cluster-xml, landing on the topology in --cluster-xml, for the named store",
	Flags: []cli.Flag{storeFlag, clusterFlag, currentClusterFlag},
	Action: func(c *cli.Context) error {
		newCluster, err := readClusterXML(c.String(clusterFlag.Name))
		if err != nil {
			return err
		}
		cl := newClient(c)
		if err := seedCurrentCluster(c, cl); err != nil {
			return fmt.Errorf("seeding current cluster topology: %w", err)
		}
		if err := cl.StealPartitionsFromCluster(c.String(storeFlag.Name), newCluster); err != nil {
			return err
		}
		done(c, "rebalance (steal) complete for store "+c.String(storeFlag.Name))
		return nil
	},
}

var returnCmd = cli.Command{
	Name:  "return",
	Usage: "return this node's partitions to the topology in --cluster-xml, starting from --current-cluster-xml, for the named store",
	Flags: []cli.Flag{storeFlag, clusterFlag, currentClusterFlag},
	Action: func(c *cli.Context) error {
		newCluster, err := readClusterXML(c.String(clusterFlag.Name))
		if err != nil {
			return err
		}
		cl := newClient(c)
		if err := seedCurrentCluster(c, cl); err != nil {
			return fmt.Errorf("seeding current cluster topology: %w", err)
		}
		if err := cl.ReturnPartitionsToCluster(c.String(storeFlag.Name), newCluster); err != nil {
			return err
		}
		done(c, "rebalance (return) complete for store "+c.String(storeFlag.Name))
		return nil
	},
}
