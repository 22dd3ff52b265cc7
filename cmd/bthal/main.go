package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/rigado/bthal/config"
)

var (
	flgSocket = cli.StringFlag{
		Name:   "socket, s",
		Value:  config.Default().Socket,
		Usage:  "control socket path",
		EnvVar: "BTHAL_SOCKET",
	}
	flgTimeout = cli.DurationFlag{
		Name:  "timeout, t",
		Value: 5 * time.Second,
		Usage: "request timeout",
	}
	flgJSON = cli.BoolFlag{
		Name:  "json",
		Usage: "print results as JSON",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "bthal"
	app.Usage = "Bluetooth adapter control plane"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{flgSocket, flgTimeout, flgJSON}

	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the daemon",
			Action: cmdServe,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config, c", Usage: "config file (.yaml, .yml or .json)", EnvVar: "BTHAL_CONFIG"},
				cli.UintFlag{Name: "index, i", Usage: "controller index"},
				cli.StringFlag{Name: "log-level", Usage: "log level (debug, info, warn, error)"},
				cli.DurationFlag{Name: "init-timeout", Usage: "adapter initialization timeout"},
				cli.DurationFlag{Name: "command-timeout", Usage: "management command timeout"},
				cli.DurationFlag{Name: "open-retry", Usage: "time spent retrying to open the management socket"},
				cli.StringFlag{Name: "metrics", Usage: "metrics listen address, e.g. :9110"},
				cli.BoolFlag{Name: "power-on", Usage: "power the controller on once ready"},
			},
		},
		{
			Name:   "info",
			Usage:  "Show the adapter info",
			Action: cmdInfo,
		},
		{
			Name:   "commands",
			Usage:  "List the supported opcodes",
			Action: cmdCommands,
		},
		{
			Name:   "register",
			Usage:  "Register the adapter and hold the registration until interrupted",
			Action: cmdRegister,
		},
		{
			Name:   "unregister",
			Usage:  "Unregister the adapter",
			Action: cmdUnregister,
		},
		{
			Name:      "add-record",
			Usage:     "Publish a service record",
			ArgsUsage: "<descriptor hex>",
			Action:    cmdAddRecord,
			Flags: []cli.Flag{
				cli.UintFlag{Name: "hint", Usage: "service class hint bits"},
			},
		},
		{
			Name:      "remove-record",
			Usage:     "Withdraw a service record",
			ArgsUsage: "<handle>",
			Action:    cmdRemoveRecord,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
