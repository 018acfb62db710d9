package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/florinutz/binsync/checkpoint"
	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/internal/config"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or override the stored binlog position",
	Long: `Reads and writes the position binsync resumes from. The store is taken
from the configuration (checkpoint.*) unless overridden by flags. Do not modify
the checkpoint while a sync is running against it.`,
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored position",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointShow,
}

var checkpointSetCmd = &cobra.Command{
	Use:   "set <file:offset>",
	Short: "Store a position, e.g. mysql-bin.000042:1337",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointSet,
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the stored position; the next sync starts at the binlog tail",
	Args:  cobra.NoArgs,
	RunE:  runCheckpointReset,
}

func init() {
	// Flags are read directly rather than bound to viper so they do not
	// collide with the sync command's checkpoint.* bindings.
	pf := checkpointCmd.PersistentFlags()
	pf.String("backend", "", "checkpoint store: file or postgres")
	pf.String("path", "", "checkpoint file path")
	pf.String("db", "", "PostgreSQL URL for the postgres store")
	pf.String("name", "", "checkpoint name in the postgres store")

	checkpointCmd.AddCommand(checkpointShowCmd)
	checkpointCmd.AddCommand(checkpointSetCmd)
	checkpointCmd.AddCommand(checkpointResetCmd)
}

func checkpointConfig(cmd *cobra.Command) (config.CheckpointConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.CheckpointConfig{}, err
	}
	cc := cfg.Checkpoint
	f := cmd.Flags()
	if f.Changed("backend") {
		cc.Backend, _ = f.GetString("backend")
	}
	if f.Changed("path") {
		cc.Path, _ = f.GetString("path")
	}
	if f.Changed("db") {
		cc.DatabaseURL, _ = f.GetString("db")
	}
	if f.Changed("name") {
		cc.Name, _ = f.GetString("name")
	}
	return cc, nil
}

func openStore(cmd *cobra.Command) (checkpoint.Store, error) {
	cc, err := checkpointConfig(cmd)
	if err != nil {
		return nil, err
	}
	return buildStore(cc, slog.Default())
}

func runCheckpointShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	pos, ok, err := store.Load(cmd.Context())
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "no checkpoint; sync starts at the current binlog tail")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "log_file: %s\nlog_pos: %d\n", pos.File, pos.Offset)
	return nil
}

func runCheckpointSet(cmd *cobra.Command, args []string) error {
	pos, err := event.ParsePosition(args[0])
	if err != nil {
		return err
	}
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Save(cmd.Context(), pos); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checkpoint set to %s\n", pos)
	return nil
}

type resetter interface {
	Reset() error
}

type contextResetter interface {
	Reset(ctx context.Context) error
}

func runCheckpointReset(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	switch s := store.(type) {
	case resetter:
		err = s.Reset()
	case contextResetter:
		err = s.Reset(cmd.Context())
	default:
		err = fmt.Errorf("checkpoint store %T cannot be reset", store)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "checkpoint cleared")
	return nil
}
