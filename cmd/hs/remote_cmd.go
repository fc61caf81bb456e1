package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named server profiles",
	GroupID: "system",
	// Local file operations only; no client is needed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <grpc-addr>",
	Short: "Add or replace a profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := Remote{URL: args[1]}
		r.HTTPURL, _ = cmd.Flags().GetString("http")
		r.Token, _ = cmd.Flags().GetString("token")
		r.NATSURL, _ = cmd.Flags().GetString("nats")

		err := updateRemotes(func(cfg *RemotesConfig) error {
			cfg.Remotes[args[0]] = r
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q saved (%s)\n", args[0], r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, err := cfg.lookup(name); err != nil {
				return err
			}
			delete(cfg.Remotes, name)
			if cfg.Active == name {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a profile the default for every command",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := updateRemotes(func(cfg *RemotesConfig) error {
			if _, err := cfg.lookup(name); err != nil {
				return err
			}
			cfg.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "using remote %q\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List profiles; the active one is starred",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(out, "no remotes configured")
			return nil
		}
		names := make([]string, 0, len(cfg.Remotes))
		for name := range cfg.Remotes {
			names = append(names, name)
		}
		slices.Sort(names)

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tGRPC\tHTTP\tTOKEN")
		for _, name := range names {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, name, r.URL, r.HTTPURL, maskToken(r.Token, false))
		}
		return w.Flush()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Print one profile (the active one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote; pass a name or run 'hs remote use <name>'")
		}
		r, err := cfg.lookup(name)
		if err != nil {
			return err
		}
		return writeRemote(cmd.OutOrStdout(), name, r, name == cfg.Active)
	},
}

func writeRemote(out io.Writer, name string, r Remote, active bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	suffix := ""
	if active {
		suffix = " (active)"
	}
	fmt.Fprintf(w, "name:\t%s%s\n", name, suffix)
	fmt.Fprintf(w, "grpc:\t%s\n", r.URL)
	for _, kv := range [][2]string{
		{"http", r.HTTPURL},
		{"token", maskToken(r.Token, true)},
		{"nats_url", r.NATSURL},
	} {
		if kv[1] != "" {
			fmt.Fprintf(w, "%s:\t%s\n", kv[0], kv[1])
		}
	}
	return w.Flush()
}

// maskToken keeps the first eight characters of a token. With full set the
// rest is starred out character by character, otherwise replaced by "...".
func maskToken(tok string, full bool) string {
	if len(tok) <= 8 {
		return tok
	}
	if full {
		return tok[:8] + strings.Repeat("*", len(tok)-8)
	}
	return tok[:8] + "..."
}

func init() {
	remoteAddCmd.Flags().String("http", "", "HTTP base URL, e.g. http://host:8080")
	remoteAddCmd.Flags().String("token", "", "bearer token")
	remoteAddCmd.Flags().String("nats", "", "NATS URL used by watch")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
