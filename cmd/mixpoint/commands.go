package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/justestif/go-mixpoint/internal/bpm"
	"github.com/justestif/go-mixpoint/internal/clustering"
	"github.com/justestif/go-mixpoint/internal/media"
	"github.com/justestif/go-mixpoint/internal/model"
	"github.com/justestif/go-mixpoint/internal/web"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if addr == "" {
					addr = a.cfg.Addr
				}
				server, err := web.NewServer(web.ServerConfig{
					Addr:          addr,
					Session:       a.session,
					Deck:          a.deck,
					Tracks:        a.tracks,
					Mixes:         a.mixes,
					Sets:          a.sets,
					Notifications: a.notes,
					Logger:        a.logger.Named("web"),
				})
				if err != nil {
					return fmt.Errorf("creating server: %w", err)
				}
				return server.Run(cmd.Context())
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to MIXPOINT_ADDR)")
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the storage schema and seed the session documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				fmt.Fprintf(cmd.OutOrStdout(), "initialized %s storage\n", a.cfg.Backend)
				return nil
			})
		},
	}
}

func newStateCmd() *cobra.Command {
	state := &cobra.Command{
		Use:   "state",
		Short: "Inspect session documents",
	}
	state.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a session document (mixState or setState)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				doc, err := a.session.GetState(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, doc)
			})
		},
	})
	return state
}

func newTracksCmd() *cobra.Command {
	tracks := &cobra.Command{
		Use:   "tracks",
		Short: "Manage stored tracks",
	}
	tracks.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored tracks, most recently modified first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				list, err := a.tracks.ListTracks(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tSIZE\tBPM")
				for _, t := range list {
					tempo := "-"
					if t.HasTempo() {
						tempo = bpm.Format(*t.BPM)
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", t.ID, t.Name, t.Size, tempo)
				}
				return tw.Flush()
			})
		},
	})
	tracks.AddCommand(newTracksGroupsCmd())
	tracks.AddCommand(&cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a stored track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid track id %q: %w", args[0], err)
			}
			return withApp(cmd, func(a *app) error {
				return a.tracks.RemoveTrack(cmd.Context(), id)
			})
		},
	})
	return tracks
}

func newTracksGroupsCmd() *cobra.Command {
	cfg := clustering.DefaultGroupConfig()
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Group stored tracks by tempo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				list, err := a.tracks.ListTracks(cmd.Context())
				if err != nil {
					return err
				}
				groups, outliers, err := clustering.DetectTempoGroups(list, cfg)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), clustering.FormatGroupSummary(groups, outliers))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&cfg.NumGroups, "groups", "n", cfg.NumGroups, "number of tempo groups")
	cmd.Flags().IntVar(&cfg.MinGroupSize, "min-size", cfg.MinGroupSize, "smallest group kept; smaller ones are listed as ungrouped")
	return cmd
}

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <slot> <file>",
		Short: "Analyze a file and load it into a slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				picker := media.PathPicker{Source: a.deck.Source(), FileHandle: args[1]}
				m, err := a.deck.LoadTrack(cmd.Context(), model.Slot(args[0]), picker)
				if errors.Is(err, media.ErrCancelled) {
					return nil
				}
				if err != nil {
					return err
				}
				st := m.SlotState(model.Slot(args[0]))
				tempo := "unknown"
				if st.HasTempo() {
					tempo = bpm.Format(st.NativeBPM())
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s bpm)\n", args[0], st.Name, tempo)
				return nil
			})
		},
	}
}

func printJSON(cmd *cobra.Command, doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
