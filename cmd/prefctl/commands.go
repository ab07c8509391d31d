package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	prefs "github.com/Protocol-Lattice/go-prefs"
	"github.com/Protocol-Lattice/go-prefs/src/config"
	"github.com/Protocol-Lattice/go-prefs/src/logging"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/model"
	"github.com/Protocol-Lattice/go-prefs/src/prefs/workflow"
)

// importBatchSize is how many catalog items share one embedding call and
// one timeout during import.
const importBatchSize = 64

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	engineOpts []prefs.Option
}

// newRootCmd builds the command tree. opts are handed to every engine the
// commands open.
func newRootCmd(opts ...prefs.Option) *cobra.Command {
	flags := rootFlags{engineOpts: opts}
	root := &cobra.Command{
		Use:           "prefctl",
		Short:         "Cross-domain preference vectors and blended recommendations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "YAML config file (default: $PREFS_CONFIG or ./prefs.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Override log.format (json or console)")

	root.AddCommand(
		provisionCmd(&flags),
		updateCmd(&flags),
		recommendCmd(&flags),
		lookupCmd(&flags),
		recordCmd(&flags),
		importCmd(&flags),
	)
	return root
}

// session is an open engine plus the command context. Each engine call
// runs under its own timeouts.external deadline.
type session struct {
	ctx     context.Context
	e       *prefs.Engine
	timeout time.Duration
}

func (s session) bounded() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.timeout)
}

// withEngine loads config, applies flag overrides, opens an engine for the
// duration of fn and prints fn's result as JSON.
func withEngine(cmd *cobra.Command, flags *rootFlags, fn func(s session) (any, error)) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()})

	ctx := cmd.Context()
	opts := append([]prefs.Option{prefs.WithLogger(log)}, flags.engineOpts...)
	e, err := prefs.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close engine")
		}
	}()

	out, err := fn(session{ctx: ctx, e: e, timeout: cfg.Timeouts.External})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func provisionCmd(flags *rootFlags) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "provision <user>",
		Short: "Create the user's activity row and starting preference vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, flags, func(s session) (any, error) {
				ctx, cancel := s.bounded()
				defer cancel()
				ok, err := s.e.Provision(ctx, args[0], overwrite)
				if err != nil {
					return nil, err
				}
				return map[string]any{"user_id": args[0], "provisioned": ok}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing vector")
	return cmd
}

func updateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "update <user> <domain> <description...>",
		Short: "Re-encode one domain segment from a description",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDomain(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd, flags, func(s session) (any, error) {
				ctx, cancel := s.bounded()
				defer cancel()
				return s.e.UpdateEmbedding(ctx, args[0], d, strings.Join(args[2:], " "))
			})
		},
	}
}

func recommendCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "recommend <user> <base-domain>",
		Short: "Blend recommendations for every domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDomain(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd, flags, func(s session) (any, error) {
				ctx, cancel := s.bounded()
				defer cancel()
				return s.e.Recommend(ctx, args[0], d)
			})
		},
	}
}

func lookupCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <domain> <name...>",
		Short: "Resolve an item by its exact name",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := model.ParseDomain(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, flags, func(s session) (any, error) {
				ctx, cancel := s.bounded()
				defer cancel()
				return s.e.Lookup(ctx, d, strings.Join(args[1:], " "))
			})
		},
	}
}

func recordCmd(flags *rootFlags) *cobra.Command {
	var opinion string
	cmd := &cobra.Command{
		Use:   "record <user> <domain> <name...>",
		Short: "Record an activity and return fresh recommendations",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev := workflow.ActivityEvent{
				UserID:   args[0],
				Domain:   args[1],
				ItemName: strings.Join(args[2:], " "),
				Opinion:  opinion,
			}
			// The workflow bounds each of its steps itself.
			return withEngine(cmd, flags, func(s session) (any, error) {
				return s.e.Record(s.ctx, ev)
			})
		},
	}
	cmd.Flags().StringVar(&opinion, "opinion", "", "What the user thought of the item")
	return cmd
}

func importCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <items.jsonl>",
		Short: "Index catalog items, one JSON object per line (id, domain, name, metadata)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			items, err := readItems(f)
			if err != nil {
				return err
			}
			return withEngine(cmd, flags, func(s session) (any, error) {
				for start := 0; start < len(items); start += importBatchSize {
					batch := items[start:min(start+importBatchSize, len(items))]
					if err := importBatch(s, batch); err != nil {
						return nil, fmt.Errorf("items %d-%d: %w", start+1, start+len(batch), err)
					}
				}
				return map[string]any{"imported": len(items)}, nil
			})
		},
	}
}

func importBatch(s session, batch []model.Item) error {
	ctx, cancel := s.bounded()
	defer cancel()
	return s.e.AddItems(ctx, batch)
}

func readItems(r io.Reader) ([]model.Item, error) {
	var items []model.Item
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var it model.Item
		if err := json.Unmarshal([]byte(text), &it); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, it)
	}
	return items, sc.Err()
}
