package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/termlink/internal/appconfig"
	"pkt.systems/termlink/internal/bridgegrpc"
)

func newBridgeCmd() *cobra.Command {
	var cfgPath string
	var socketPath string
	var shell string
	var env []string
	var keepaliveInterval time.Duration
	var keepaliveMisses int
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run the host bridge that executes live session commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			bridgeCfg := bridgegrpc.Config{
				SocketPath:        cfg.Bridge.SocketPath,
				KeepaliveInterval: time.Duration(cfg.Bridge.KeepaliveIntervalSeconds) * time.Second,
				KeepaliveMisses:   cfg.Bridge.KeepaliveMisses,
			}
			shellCfg := bridgegrpc.ShellConfig{
				Shell:  cfg.Bridge.Shell,
				Env:    append(append([]string(nil), cfg.Bridge.Env...), env...),
				Logger: logger,
			}
			if socketPath != "" {
				bridgeCfg.SocketPath = socketPath
			}
			if shell != "" {
				shellCfg.Shell = shell
			}
			if keepaliveInterval > 0 {
				bridgeCfg.KeepaliveInterval = keepaliveInterval
			}
			if keepaliveMisses > 0 {
				bridgeCfg.KeepaliveMisses = keepaliveMisses
			}
			logger.Info("bridge config loaded", "socket", bridgeCfg.SocketPath, "shell", shellCfg.Shell, "env", len(shellCfg.Env), "keepalive_interval", bridgeCfg.KeepaliveInterval, "keepalive_misses", bridgeCfg.KeepaliveMisses)

			backend := bridgegrpc.NewShellBackend(shellCfg)
			defer backend.Close()
			server := bridgegrpc.NewServer(bridgeCfg, backend)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("bridge socket listening", "socket", bridgeCfg.SocketPath)
			return server.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&socketPath, "socket-path", "", "bridge socket path (overrides config)")
	cmd.Flags().StringVar(&shell, "shell", "", "shell used to run input lines (overrides config)")
	cmd.Flags().StringArrayVar(&env, "env", nil, "extra env for session commands (repeatable KEY=VAL)")
	cmd.Flags().DurationVar(&keepaliveInterval, "keepalive-interval", 0, "expect client pings at this interval (e.g. 10s)")
	cmd.Flags().IntVar(&keepaliveMisses, "keepalive-misses", 0, "missed pings before the bridge exits")
	return cmd
}
