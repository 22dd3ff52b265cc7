package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/rigado/bthal"
	"github.com/rigado/bthal/adapter"
	"github.com/rigado/bthal/bridge"
	"github.com/rigado/bthal/config"
	"github.com/rigado/bthal/hal"
	"github.com/rigado/bthal/linux/ipc"
	"github.com/rigado/bthal/linux/mgmt"
	"github.com/rigado/bthal/registry"
)

// loadConfig reads the config file, if any, and applies the flags set on the
// command line over it.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if p := c.String("config"); p != "" {
		var err error
		if cfg, err = config.Load(p); err != nil {
			return nil, err
		}
	}

	if c.GlobalIsSet("socket") {
		cfg.Socket = c.GlobalString("socket")
	}
	if c.IsSet("index") {
		cfg.Index = uint16(c.Uint("index"))
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("init-timeout") {
		cfg.InitTimeout = c.Duration("init-timeout")
	}
	if c.IsSet("command-timeout") {
		cfg.CommandTimeout = c.Duration("command-timeout")
	}
	if c.IsSet("open-retry") {
		cfg.OpenRetry = c.Duration("open-retry")
	}
	if c.IsSet("metrics") {
		cfg.MetricsAddr = c.String("metrics")
	}
	if c.IsSet("power-on") {
		cfg.PowerOn = c.Bool("power-on")
	}
	return cfg, cfg.Validate()
}

// daemonLogger is the default logger with timestamps, for long running use.
func daemonLogger() bthal.Logger {
	return bthal.NewLogger(&logrus.Logger{
		Formatter: &logrus.TextFormatter{FullTimestamp: true},
		Level:     logrus.InfoLevel,
		Out:       os.Stderr,
		Hooks:     make(logrus.LevelHooks),
	})
}

// openRetryPolicy retries with exponential backoff for up to budget. A zero
// budget makes a single attempt.
func openRetryPolicy(budget time.Duration) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if budget <= 0 {
		return backoff.WithMaxRetries(bo, 0)
	}
	bo.MaxElapsedTime = budget
	return bo
}

// openMgmt opens the management socket under openRetryPolicy(budget).
func openMgmt(ctx context.Context, budget time.Duration, lg bthal.Logger) (*mgmt.Socket, error) {
	bo := openRetryPolicy(budget)

	var skt *mgmt.Socket
	err := backoff.RetryNotify(func() error {
		var err error
		skt, err = mgmt.NewSocket()
		return err
	}, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		lg.Warnf("can't open management socket, retrying in %v: %v", d, err)
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't open management socket")
	}
	return skt, nil
}

func cmdServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	bthal.SetLogger(daemonLogger())
	if err := bthal.SetLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	lg := bthal.GetLogger().ChildLogger(map[string]interface{}{"component": "daemon"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	skt, err := openMgmt(ctx, cfg.OpenRetry, lg)
	if err != nil {
		return err
	}

	a := adapter.New(cfg.Index)
	reg := registry.New(a)
	br, err := bridge.New(cfg.Index, a, skt,
		bthal.OptInitTimeout(cfg.InitTimeout),
		bthal.OptCommandTimeout(cfg.CommandTimeout))
	if err != nil {
		skt.Close()
		return err
	}
	defer br.Close()

	srv, err := ipc.Listen(cfg.Socket, hal.NewDispatcher(a, reg, br))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		select {
		case <-br.Lost():
			return br.Error()
		case <-gctx.Done():
			return nil
		}
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		hs := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			lg.Infof("metrics on %s", cfg.MetricsAddr)
			if err := hs.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "metrics server")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}

	err = br.Start(gctx, func(err error) {
		if err != nil {
			lg.Errorf("adapter initialization failed: %v", err)
			return
		}
		addr, _ := a.Address()
		lg.Infof("adapter %v ready", addr)

		go func() {
			if v, r, err := br.Version(gctx); err == nil {
				lg.Infof("management interface %d.%d", v, r)
			}
			if cfg.PowerOn {
				if err := br.SetPowered(gctx, true); err != nil {
					lg.Errorf("can't power on: %v", err)
				}
			}
		}()
	})
	if err != nil {
		stop()
		g.Wait()
		return errors.Wrap(err, "can't start bridge")
	}

	err = g.Wait()
	lg.Info("shutting down")
	return err
}
