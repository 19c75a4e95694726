// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	hllrcon "github.com/schultz-is/hllrcon-go"
)

func newConnectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect and authenticate, then disconnect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", a.clientConfig().Address())
				return err
			})
		},
	}
}

func newExecCommand(a *app) *cobra.Command {
	var (
		version int
		format  string
	)
	cmd := &cobra.Command{
		Use:   "exec NAME [BODY]",
		Short: "Run a raw command and print its content body",
		Long:  "Run a raw command and print its content body. BODY is sent verbatim, so JSON bodies must be quoted for the shell.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseOutputFormat(format)
			if err != nil {
				return err
			}
			var body string
			if len(args) == 2 {
				body = args[1]
			}
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				content, err := c.Execute(cmd.Context(), args[0], version, body)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), []byte(content), f)
			})
		},
	}
	cmd.Flags().IntVar(&version, "cmd-version", hllrcon.ProtocolVersion, "command version")
	cmd.Flags().StringVarP(&format, "output", "o", string(outputRaw), "output format (raw|json|yaml)")
	return cmd
}

func newBroadcastCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast MESSAGE...",
		Short: "Set the server broadcast message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				return c.Broadcast(cmd.Context(), strings.Join(args, " "))
			})
		},
	}
}

func newMessageCommand(a *app) *cobra.Command {
	var playerID string
	cmd := &cobra.Command{
		Use:   "message MESSAGE...",
		Short: "Message a single player, or every player when --player is not set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				if playerID == "" {
					return c.MessageAllPlayers(cmd.Context(), message)
				}
				return c.MessagePlayer(cmd.Context(), playerID, message)
			})
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player ID to message")
	return cmd
}

func newPlayersCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "players",
		Short: "List the players on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseOutputFormat(format)
			if err != nil {
				return err
			}
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				players, err := c.GetPlayers(cmd.Context())
				if err != nil {
					return err
				}
				if f != outputRaw {
					return writeValue(cmd.OutOrStdout(), players, f)
				}
				w := cmd.OutOrStdout()
				for _, p := range players {
					if _, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d/%d\n", p.ID, p.Name, p.Level, p.Kills, p.Deaths); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", string(outputRaw), "output format (raw|json|yaml)")
	return cmd
}

func newSessionCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show the state of the current match",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseOutputFormat(format)
			if err != nil {
				return err
			}
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				sess, err := c.GetServerSession(cmd.Context())
				if err != nil {
					return err
				}
				if f != outputRaw {
					return writeValue(cmd.OutOrStdout(), sess, f)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s on %s (%s), %d/%d players, allies %d axis %d\n",
					sess.ServerName, sess.MapName, sess.GameMode, sess.PlayerCount, sess.MaxPlayerCount, sess.AlliedScore, sess.AxisScore)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "yaml", "output format (raw|json|yaml)")
	return cmd
}

func newCommandsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands the server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				commands, err := c.GetCommands(cmd.Context())
				if err != nil {
					return err
				}
				for _, info := range commands {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.ID, info.FriendlyName); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newKickCommand(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "kick PLAYER_ID",
		Short: "Kick a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				ok, err := c.KickPlayer(cmd.Context(), args[0], reason)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("player %s is not on the server", args[0])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the player")
	return cmd
}

func newBanCommand(a *app) *cobra.Command {
	var (
		reason string
		admin  string
		hours  int
	)
	cmd := &cobra.Command{
		Use:   "ban PLAYER_ID",
		Short: "Ban a player, permanently unless --hours is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				return c.BanPlayer(cmd.Context(), args[0], reason, admin, hours)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason shown to the player")
	cmd.Flags().StringVar(&admin, "admin", "hllrcon", "admin name recorded with the ban")
	cmd.Flags().IntVar(&hours, "hours", 0, "ban duration in hours")
	return cmd
}

func newUnbanCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unban PLAYER_ID",
		Short: "Lift every ban of a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(c *hllrcon.Client) error {
				ok, err := c.UnbanPlayer(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("player %s is not banned", args[0])
				}
				return nil
			})
		},
	}
}
