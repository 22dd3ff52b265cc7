package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/bthal/adapter"
	"github.com/rigado/bthal/hal"
	"github.com/rigado/bthal/hal/client"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func withClient(c *cli.Context, fn func(ctx context.Context, cl *client.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
	defer cancel()

	cl, err := client.Dial(ctx, c.GlobalString("socket"))
	if err != nil {
		return err
	}
	defer cl.Close()
	return fn(ctx, cl)
}

func printResult(c *cli.Context, v interface{}, text string) error {
	if c.GlobalBool("json") {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	fmt.Println(text)
	return nil
}

func stateColor(s adapter.State) string {
	switch s {
	case adapter.Ready:
		return color.GreenString("%v", s)
	case adapter.Unregistered, adapter.Initializing:
		return color.YellowString("%v", s)
	default:
		return color.RedString("%v", s)
	}
}

type infoJSON struct {
	Index      uint16 `json:"index"`
	State      string `json:"state"`
	Registered bool   `json:"registered"`
	Address    string `json:"address"`
	Settings   uint32 `json:"settings"`
	Class      string `json:"class"`
	Hints      uint8  `json:"hints"`
	Name       string `json:"name"`
}

func cmdInfo(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		ai, err := cl.ReadInfo(ctx)
		if err != nil {
			return err
		}
		v := infoJSON{
			Index:      ai.Index,
			State:      ai.State.String(),
			Registered: ai.Registered,
			Address:    ai.Address.String(),
			Settings:   ai.Settings,
			Class:      hex.EncodeToString(ai.Class[:]),
			Hints:      ai.Hints,
			Name:       ai.Name,
		}
		text := fmt.Sprintf("hci%d %s %s registered=%v settings=0x%08x class=%s hints=0x%02x name=%q",
			ai.Index, stateColor(ai.State), ai.Address, ai.Registered, ai.Settings, v.Class, ai.Hints, ai.Name)
		return printResult(c, v, text)
	})
}

func cmdCommands(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		m, err := cl.ReadCommands(ctx)
		if err != nil {
			return err
		}
		var ops []string
		for op := hal.Opcode(0); op < 16; op++ {
			if m&(1<<op) != 0 {
				ops = append(ops, op.String())
			}
		}
		return printResult(c, ops, fmt.Sprintf("0x%04x %v", m, ops))
	})
}

func cmdRegister(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.GlobalDuration("timeout"))
	defer cancel()

	cl, err := client.Dial(ctx, c.GlobalString("socket"))
	if err != nil {
		return err
	}
	defer cl.Close()

	if err := cl.Register(ctx); err != nil {
		return err
	}
	fmt.Println(color.GreenString("registered"), "(interrupt to release)")

	// the registration lives as long as the channel
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

func cmdUnregister(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		n, err := cl.Unregister(ctx)
		if err != nil {
			return err
		}
		return printResult(c, map[string]int{"purged": n}, fmt.Sprintf("%s, %d records purged", color.YellowString("unregistered"), n))
	})
}

func cmdAddRecord(c *cli.Context) error {
	d, err := hex.DecodeString(c.Args().First())
	if err != nil {
		return errors.Wrap(err, "invalid descriptor")
	}
	hint := c.Uint("hint")
	if hint > 0xff {
		return errors.Errorf("invalid hint 0x%x", hint)
	}
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		h, err := cl.AddRecord(ctx, uint8(hint), d)
		if err != nil {
			return err
		}
		return printResult(c, map[string]uint32{"handle": h}, fmt.Sprintf("handle 0x%08x", h))
	})
}

func cmdRemoveRecord(c *cli.Context) error {
	h, err := strconv.ParseUint(c.Args().First(), 0, 32)
	if err != nil {
		return errors.Wrap(err, "invalid handle")
	}
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		if err := cl.RemoveRecord(ctx, uint32(h)); err != nil {
			return err
		}
		return printResult(c, map[string]uint32{"removed": uint32(h)}, fmt.Sprintf("removed 0x%08x", h))
	})
}
