package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ja7ad/runningtime/pkg/system/host"
)

func newCalibrateCmd(o *opts) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Re-run the calibration benchmark and cache the new factor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd, *o)
			if err != nil {
				return err
			}
			st, err := build(s)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals(cmd.Context(), s)
			defer cancel()

			h := host.Describe(ctx)
			f, err := st.est.Calibrate(ctx)
			if err != nil {
				return err
			}
			if err := writeMetrics(s, st.reg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "throttling factor: %s\n", f)
			fmt.Fprintf(cmd.OutOrStdout(), "reference:         %s (%d runs)\n", s.reference, s.runs)
			fmt.Fprintf(cmd.OutOrStdout(), "host cpu:          %s\n", h.CPU())
			fmt.Fprintf(cmd.OutOrStdout(), "cached at:         %s\n", st.cache.Path())
			return nil
		},
	}
}

func newCacheCmd(o *opts) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the cached throttling factor",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the cached throttling factor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd, *o)
			if err != nil {
				return err
			}
			st, err := build(s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "path:   %s\n", st.cache.Path())
			if f, ok := st.cache.Read(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "factor: %s\n", f)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "factor: none (next estimate calibrates)")
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached throttling factor from disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := load(cmd, *o)
			if err != nil {
				return err
			}
			st, err := build(s)
			if err != nil {
				return err
			}
			if err := st.cache.Purge(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", st.cache.Dir())
			return nil
		},
	}

	cache.AddCommand(showCmd, clearCmd)
	return cache
}
