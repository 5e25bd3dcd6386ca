// Command cascadectl inspects and repairs the element ids recorded on pages.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"cascade/internal/cms"
	"cascade/internal/config"
	"cascade/internal/db"
	"cascade/internal/elementid"
	"cascade/internal/glossary"
	"cascade/internal/logger"
	"cascade/internal/maintenance"
	"cascade/internal/store"
)

// Store is what the commands read and write.
type Store interface {
	elementid.Documents
	maintenance.Pages
	GetInstance(ctx context.Context, id int64) (cms.PluginInstance, error)
}

// opener connects to the database; the returned func releases it.
type opener func(ctx context.Context, log *slog.Logger) (Store, func(), error)

var errConflict = errors.New("element id is not unique on its page")

func main() {
	if err := rootCmd(openStore, os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context, log *slog.Logger) (Store, func(), error) {
	cfg := config.LoadCore()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	return store.New(pool), pool.Close, nil
}

func rootCmd(open opener, out io.Writer) *cobra.Command {
	var logLevel string
	log := slog.Default()

	cmd := &cobra.Command{
		Use:           "cascadectl",
		Short:         "Inspect and repair page element ids",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env := "production"
			if logLevel == "debug" {
				env = "development"
			}
			log = logger.NewWithWriter(cmd.ErrOrStderr(), env)
		},
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info)")

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, st Store) error) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, release, err := open(ctx, log)
		if err != nil {
			return err
		}
		defer release()
		return fn(ctx, st)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "element-ids <page>",
		Short: "Print the element ids recorded on a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pageID, err := maintenance.ParsePageID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(ctx context.Context, st Store) error {
				pg, err := st.PageGlossary(ctx, pageID)
				if err != nil {
					return fmt.Errorf("page %d: %w", pageID, err)
				}
				return printElementIDs(cmd.OutOrStdout(), pg)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "check <instance> <candidate>",
		Short: "Check whether an element id would be unique for an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return errors.New("instance id must be a positive integer")
			}
			candidate := elementid.Normalize(args[1])
			return withStore(cmd, func(ctx context.Context, st Store) error {
				inst, err := st.GetInstance(ctx, id)
				if err != nil {
					return fmt.Errorf("instance %d: %w", id, err)
				}
				verdict, err := elementid.NewEnforcer(st, log, nil).CheckInstance(ctx, inst, candidate)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", candidate, verdict)
				if verdict == elementid.Conflicting {
					return errConflict
				}
				return nil
			})
		},
	})

	var page int64
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Remove element ids of deleted plugin instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st Store) error {
				pruner := maintenance.NewPruner(st, elementid.NewEnforcer(st, log, nil), log, 4)
				if page > 0 {
					removed, err := pruner.PrunePage(ctx, page)
					if err != nil {
						return fmt.Errorf("page %d: %w", page, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "page %d: removed %d\n", page, len(removed))
					for _, k := range removed {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", k)
					}
					return nil
				}
				res, err := pruner.PruneAll(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pages: %d removed: %d failed: %d\n", res.Pages, res.Removed, res.Failed)
				if res.Failed > 0 {
					return fmt.Errorf("%d pages failed", res.Failed)
				}
				return nil
			})
		},
	}
	prune.Flags().Int64Var(&page, "page", 0, "Prune a single page")
	cmd.AddCommand(prune)

	return cmd
}

func printElementIDs(w io.Writer, pg glossary.Page) error {
	ids := pg.ElementIDs
	if ids == nil {
		ids = map[string]string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(ids)
}
