package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"offer-filter/internal/settings"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write the default value of every setting that is not stored yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		be, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer be.close()

		written, err := settings.Seed(cmd.Context(), be.store)
		if err != nil {
			return err
		}
		if len(written) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "All settings already present")
			return nil
		}
		for _, k := range settings.Keys {
			if v, ok := written[k]; ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", k, v)
			}
		}
		return nil
	},
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change the filter settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key...]",
	Short: "Print settings (stored values over defaults)",
	RunE: func(cmd *cobra.Command, args []string) error {
		be, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer be.close()

		current, err := settings.Load(cmd.Context(), be.store)
		if err != nil {
			return err
		}
		values := current.Values()

		keys := args
		if len(keys) == 0 {
			keys = settings.Keys
		}
		for _, k := range keys {
			v, ok := values[k]
			if !ok {
				return fmt.Errorf("%w: %q", settings.ErrUnknownKey, k)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%v\n", k, v)
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change settings; a running filter picks the change up",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := parseAssignments(args)
		if err != nil {
			return err
		}

		be, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer be.close()
		return be.store.Set(cmd.Context(), values)
	},
}

func parseAssignments(args []string) (settings.Values, error) {
	values := settings.Values{}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		v, err := settings.Normalize(strings.TrimSpace(key), strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		values[strings.TrimSpace(key)] = v
	}
	return values, nil
}

func init() {
	settingsCmd.AddCommand(settingsGetCmd, settingsSetCmd)
	rootCmd.AddCommand(seedCmd, settingsCmd)
}
