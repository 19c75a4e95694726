// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	hllrcon "github.com/schultz-is/hllrcon-go"
)

// envPrefix prefixes every environment variable read by the command.
const envPrefix = "HLLRCON"

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(context.Background(),
		pslog.WithEnvPrefix(envPrefix+"_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "hllrcon")

	cmd := newRootCommand(logger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "%s\n", err)
		}
		return 1
	}
	return 0
}

// app carries the state shared by every subcommand.
type app struct {
	logger pslog.Logger
	v      *viper.Viper
}

func newRootCommand(logger pslog.Logger) *cobra.Command {
	a := &app{logger: logger, v: viper.New()}

	cmd := &cobra.Command{
		Use:           "hllrcon",
		Short:         "Run Hell Let Loose RCON commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfigFile()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to a YAML config file")
	flags.StringP("host", "H", "", "RCON server host")
	flags.IntP("port", "p", 0, "RCON server port")
	flags.StringP("password", "P", "", "RCON password")
	flags.Duration("connect-timeout", hllrcon.DefaultConnectTimeout, "time allowed for dialing and the handshake")
	flags.Duration("command-timeout", hllrcon.DefaultCommandTimeout, "time allowed for each command")
	flags.Int("connect-attempts", hllrcon.DefaultBackoffMaxAttempts, "connection attempts before giving up")
	flags.Bool("retry", false, "run a command once more if the connection is lost while it is in flight")
	flags.Bool("log-outbound-auth", false, "include the password in debug logs of login requests")
	a.bindFlags(flags)

	cmd.AddCommand(
		newConnectCommand(a),
		newExecCommand(a),
		newBroadcastCommand(a),
		newPlayersCommand(a),
		newSessionCommand(a),
		newCommandsCommand(a),
		newKickCommand(a),
		newBanCommand(a),
		newUnbanCommand(a),
		newMessageCommand(a),
	)
	return cmd
}

// bindFlags makes every flag in flags resolvable through the environment and the config file.
func (a *app) bindFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		if err := a.v.BindPFlag(flag.Name, flag); err != nil {
			panic(err)
		}
	})

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
}

func (a *app) loadConfigFile() error {
	cfgPath := strings.TrimSpace(a.v.GetString("config"))
	if cfgPath == "" {
		return nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", expanded)
	}

	a.v.SetConfigFile(expanded)
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", expanded, err)
	}
	a.logger.Debug("loaded config file", "path", expanded)
	return nil
}

func expandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

// clientConfig builds a client config from flags, environment, and config file, in that order of
// precedence.
func (a *app) clientConfig() hllrcon.Config {
	cfg := hllrcon.DefaultConfig(a.v.GetString("host"), a.v.GetInt("port"), a.v.GetString("password"))
	cfg.ConnectTimeout = a.v.GetDuration("connect-timeout")
	cfg.CommandTimeout = a.v.GetDuration("command-timeout")
	cfg.Backoff.MaxAttempts = a.v.GetInt("connect-attempts")
	cfg.RetryOnConnectionLost = a.v.GetBool("retry")
	cfg.LogOutboundAuthPackets = a.v.GetBool("log-outbound-auth")
	cfg.Logger = a.logger
	return cfg
}

// withClient connects a new client, runs fn, and disconnects again.
func (a *app) withClient(ctx context.Context, fn func(*hllrcon.Client) error) error {
	c, err := hllrcon.NewClient(a.clientConfig())
	if err != nil {
		return err
	}
	return c.WithConnection(ctx, fn)
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
