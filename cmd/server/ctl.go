package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"mcpanel/internal/client"
	"mcpanel/internal/models"
)

func newCtlClient(ctx *cli.Context) (*client.Client, error) {
	logger, err := newLogger(ctx.String("log-level"), true)
	if err != nil {
		return nil, err
	}
	if !ctx.Bool("verbose") {
		logger = zap.NewNop()
	}
	return client.NewClient(logger.Sugar(), ctx.String("url")), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printAction(resp *models.ActionResponse, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", resp.Status, resp.Message)
	return nil
}

func ctlAction(f func(ctx *cli.Context, c *client.Client) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := newCtlClient(ctx)
		if err != nil {
			return err
		}
		return f(ctx, c)
	}
}

func graceFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:  "grace",
		Usage: "How long to wait for the server to exit before killing it. Defaults to the panel's configured period.",
		Value: -1,
	}
}

func ctlCommand() *cli.Command {
	return &cli.Command{
		Name:  "ctl",
		Usage: "control a running panel over its HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "Base URL of the panel.",
				Value: "http://127.0.0.1:5000",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log HTTP retries.",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start the server",
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					return printAction(c.Start(ctx.Context))
				}),
			},
			{
				Name:  "stop",
				Usage: "stop the server",
				Flags: []cli.Flag{graceFlag()},
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					return printAction(c.Stop(ctx.Context, ctx.Duration("grace")))
				}),
			},
			{
				Name:  "restart",
				Usage: "stop the server if it is running, then start it",
				Flags: []cli.Flag{graceFlag()},
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					return printAction(c.Restart(ctx.Context, ctx.Duration("grace")))
				}),
			},
			{
				Name:      "command",
				Usage:     "send a console command to the server",
				ArgsUsage: "COMMAND...",
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					if ctx.NArg() == 0 {
						return fmt.Errorf("missing command")
					}
					return printAction(c.SendCommand(ctx.Context, strings.Join(ctx.Args().Slice(), " ")))
				}),
			},
			{
				Name:  "status",
				Usage: "show server status",
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					status, err := c.Status(ctx.Context)
					if err != nil {
						return err
					}
					return printJSON(status)
				}),
			},
			{
				Name:  "events",
				Usage: "show recent supervisor events",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "level", Usage: "Only show events at this level."},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of events.", Value: 50},
				},
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					events, err := c.Events(ctx.Context, ctx.String("level"), ctx.Int("limit"))
					if err != nil {
						return err
					}
					for _, e := range events {
						fmt.Printf("%s [%s] %s\n", e.Timestamp, e.Level, e.Message)
					}
					return nil
				}),
			},
			{
				Name:  "console",
				Usage: "print pending console output",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "follow", Aliases: []string{"f"}, Usage: "Keep streaming output until interrupted."},
				},
				Action: ctlAction(func(ctx *cli.Context, c *client.Client) error {
					if ctx.Bool("follow") {
						followCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
						defer stop()
						return c.FollowConsole(followCtx, os.Stdout)
					}
					lines, err := c.Console(ctx.Context)
					if err != nil {
						return err
					}
					for _, l := range lines {
						fmt.Println(l)
					}
					return nil
				}),
			},
		},
	}
}
