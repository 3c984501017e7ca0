package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gaintag/internal/scancache"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Measurement cache maintenance",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all cached measurements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := scancache.Open(cfg.Cache.Dir)
			if err != nil {
				if errors.Is(err, scancache.ErrLocked) {
					return fmt.Errorf("measurement cache at %s is in use by another gaintag process", cfg.Cache.Dir)
				}
				return fmt.Errorf("open measurement cache: %w", err)
			}
			defer store.Close()

			dropped, err := store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear cache: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dropped %d cached measurements\n", dropped)
			return nil
		},
	})

	return cacheCmd
}
