package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termlink"
	"pkt.systems/termlink/core"
	"pkt.systems/termlink/internal/appconfig"
	"pkt.systems/termlink/internal/bridgegrpc"
	"pkt.systems/termlink/internal/livetransport"
	"pkt.systems/termlink/internal/simtransport"
	"pkt.systems/termlink/schema"
	"pkt.systems/termlink/sshserver"
	"pkt.systems/termlink/surface"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var mode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the terminal surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if mode != "" {
				cfg.Transport.Mode = mode
			}
			transport, err := buildTransport(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("transport selected", "mode", cfg.Transport.Mode, "socket", cfg.Transport.SocketPath)

			opts := []termlink.ServerOption{termlink.WithHTTP()}
			if cfg.SSH.Enabled {
				opts = append(opts, termlink.WithSSH())
			}
			server, err := termlink.New(toServerConfig(cfg), termlink.ServerDeps{
				ServiceDeps: core.ServiceDeps{Transport: transport, Logger: logger},
			}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := server.Start(ctx); err != nil {
				return err
			}
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Stop(stopCtx)
			}()
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&mode, "transport", "", "transport mode: simulated or live (overrides config)")
	return cmd
}

// buildTransport picks the transport variant once for the lifetime of the process.
func buildTransport(cfg appconfig.Config, logger pslog.Logger) (core.Transport, error) {
	switch cfg.Transport.Mode {
	case appconfig.TransportLive:
		client := bridgegrpc.NewClient(bridgegrpc.Config{
			KeepaliveInterval: clientKeepalive(cfg.Bridge.KeepaliveIntervalSeconds),
		})
		return livetransport.New(client, livetransport.Config{
			SocketPath: cfg.Transport.SocketPath,
			Logger:     logger,
		})
	case appconfig.TransportSimulated, "":
		return simtransport.New(simtransport.Config{
			OutputDelay: time.Duration(cfg.Transport.Simulated.OutputDelayMS) * time.Millisecond,
			StartDelay:  time.Duration(cfg.Transport.Simulated.StartDelayMS) * time.Millisecond,
			Logger:      logger,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported transport mode %q", cfg.Transport.Mode)
	}
}

// clientKeepalive pings at half the bridge's expiry interval.
func clientKeepalive(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second / 2
}

func toServerConfig(cfg appconfig.Config) termlink.ServerConfig {
	return termlink.ServerConfig{
		Service: schema.ServiceConfig{
			DefaultWorkingDirectory: cfg.Session.DefaultWorkingDir,
			Credential:              cfg.Session.Credential,
		},
		HTTP: surface.Config{
			Addr:           cfg.HTTP.Addr,
			ReadLimitBytes: cfg.HTTP.ReadLimitBytes,
		},
		SSH: sshserver.Config{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
			TOTPSecret:         cfg.SSH.TOTPSecret,
		},
	}
}
