package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ledgerclient/nodemanager"
	"github.com/urfave/cli/v2"
)

func main() { os.Exit(main1()) }

func main1() int {
	app := &cli.App{
		Name:  "nodemanager",
		Usage: "talk to a set of ledger nodes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML configuration file"},
			&cli.StringSliceFlag{Name: "node", Aliases: []string{"n"}, Usage: "node URL, can be repeated"},
			&cli.StringFlag{Name: "primary", Usage: "primary node URL"},
			&cli.StringSliceFlag{Name: "permanode", Usage: "permanode URL, can be repeated"},
			&cli.BoolFlag{Name: "quorum", Usage: "require nodes to agree on answers"},
			&cli.IntFlag{Name: "min-quorum-size", Value: nodemanager.DefaultMinQuorumSize},
			&cli.IntFlag{Name: "quorum-threshold", Value: nodemanager.DefaultQuorumThreshold},
			&cli.BoolFlag{Name: "no-sync", Usage: "don't health check nodes"},
			&cli.StringFlag{Name: "log-level", Value: "warn"},
			&cli.DurationFlag{Name: "timeout", Value: nodemanager.DefaultAPITimeout, Usage: "per node request timeout"},
		},
		Commands: []*cli.Command{
			{
				Name:  "info",
				Usage: "print the info of the first node that answers",
				Action: withManager(func(cctx *cli.Context, m *nodemanager.NodeManager) error {
					info, err := m.Info(cctx.Context)
					if err != nil {
						return err
					}
					return printJSON(info)
				}),
			},
			{
				Name:      "get",
				Usage:     "GET a JSON resource",
				ArgsUsage: "<path> [query]",
				Action: withManager(func(cctx *cli.Context, m *nodemanager.NodeManager) error {
					if cctx.Args().Len() < 1 {
						return fmt.Errorf("usage: nodemanager get <path> [query]")
					}
					var out json.RawMessage
					err := m.GetRequest(cctx.Context, cctx.Args().Get(0), cctx.Args().Get(1),
						cctx.Duration("timeout"), cctx.Bool("quorum"), false, &out)
					if err != nil {
						return err
					}
					return printJSON(out)
				}),
			},
			{
				Name:      "raw",
				Usage:     "GET a resource in binary form and write it to stdout",
				ArgsUsage: "<path>",
				Action: withManager(func(cctx *cli.Context, m *nodemanager.NodeManager) error {
					if cctx.Args().Len() < 1 {
						return fmt.Errorf("usage: nodemanager raw <path>")
					}
					b, err := m.GetRequestBytes(cctx.Context, cctx.Args().Get(0), "", cctx.Duration("timeout"))
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(b)
					return err
				}),
			},
			{
				Name:  "health",
				Usage: "sync once and list healthy and unhealthy nodes",
				Action: withManager(func(cctx *cli.Context, m *nodemanager.NodeManager) error {
					healthy, err := m.HealthyNodes()
					if err != nil {
						return err
					}
					unhealthy, err := m.UnhealthyNodes()
					if err != nil {
						return err
					}
					for _, n := range healthy {
						fmt.Printf("healthy   %s\n", n)
					}
					for _, n := range unhealthy {
						fmt.Printf("unhealthy %s\n", n)
					}
					return nil
				}),
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Println(err)
		return 1
	}
	return 0
}

func withManager(f func(cctx *cli.Context, m *nodemanager.NodeManager) error) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		if err := nodemanager.SetLogLevel(cctx.String("log-level")); err != nil {
			return err
		}
		conf, err := buildConfig(cctx)
		if err != nil {
			return err
		}
		m, err := nodemanager.New(conf)
		if err != nil {
			return err
		}
		defer m.Close()
		return f(cctx, m)
	}
}

func buildConfig(cctx *cli.Context) (*nodemanager.Config, error) {
	conf := nodemanager.DefaultConfig()
	if path := cctx.String("config"); path != "" {
		var err error
		if conf, err = nodemanager.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	for _, u := range cctx.StringSlice("node") {
		conf.Nodes = append(conf.Nodes, nodemanager.NodeConfig{URL: u})
	}
	for _, u := range cctx.StringSlice("permanode") {
		conf.Permanodes = append(conf.Permanodes, nodemanager.NodeConfig{URL: u})
	}
	if u := cctx.String("primary"); u != "" {
		conf.PrimaryNode = &nodemanager.NodeConfig{URL: u}
	}
	if cctx.IsSet("quorum") {
		conf.Quorum = cctx.Bool("quorum")
	}
	if cctx.IsSet("min-quorum-size") {
		conf.MinQuorumSize = cctx.Int("min-quorum-size")
	}
	if cctx.IsSet("quorum-threshold") {
		conf.QuorumThreshold = cctx.Int("quorum-threshold")
	}
	if cctx.Bool("no-sync") {
		conf.NodeSyncDisabled = true
	}
	if cctx.IsSet("timeout") {
		conf.APITimeout = cctx.Duration("timeout")
	}
	return conf, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
