// Package checkoutcmder provides the checkout subcommand for checking out
// a point in the conversation DAG.
package checkoutcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/capsule/cmd/capsule/setup"
	"github.com/papercomputeco/capsule/pkg/cliui"
	"github.com/papercomputeco/capsule/pkg/config"
	"github.com/papercomputeco/capsule/pkg/history"
	"github.com/papercomputeco/capsule/pkg/utils"
)

var flagKeys = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
}

type checkoutCommander struct {
	flags struct {
		storage, sqlite, postgres string
	}

	hash      string
	cfg       *config.Config
	configDir string
	out       io.Writer
	logger    *slog.Logger
}

const checkoutLongDesc string = `Checkout a point in the conversation to resume from.

Loads the conversation up to the given hash (or a unique prefix of one) and
makes it the starting point of the next "capsule chat". Replying from an
earlier point starts a new branch; the original conversation is kept.

If no hash is provided, clears the checkout state so the next chat session
starts a new conversation.

Examples:
  capsule checkout 3f2a9c81d0e4   Checkout a specific conversation point
  capsule checkout                Clear checkout state, start fresh`

const checkoutShortDesc string = "Checkout a conversation point"

func NewCheckoutCmd() *cobra.Command {
	cmder := &checkoutCommander{}

	cmd := &cobra.Command{
		Use:   "checkout [hash]",
		Short: checkoutShortDesc,
		Long:  checkoutLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = setup.LoadConfig(cmd, flagKeys...)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				cmder.hash = args[0]
			}
			cmder.configDir = setup.ConfigDir(cmd)
			cmder.out = cmd.OutOrStdout()
			cmder.logger = setup.QuietLogger(cmd.ErrOrStderr(), setup.Debug(cmd))
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.flags.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlite)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)

	return cmd
}

func (c *checkoutCommander) run(ctx context.Context) error {
	driver, err := setup.OpenDriver(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	store, err := history.NewStore(&history.Config{
		Driver: driver,
		Dir:    c.configDir,
		Logger: c.logger,
	})
	if err != nil {
		return err
	}

	// If no hash provided, clear checkout state
	if c.hash == "" {
		if err := store.Clear(); err != nil {
			return fmt.Errorf("clearing checkout: %w", err)
		}
		fmt.Fprintln(c.out, "Checkout cleared. Next chat will start a new conversation.")
		return nil
	}

	c.logger.Debug("checking out conversation", "hash", c.hash)

	hash, err := store.Resolve(ctx, c.hash)
	if err != nil {
		return err
	}

	conv, err := store.Checkout(ctx, hash)
	if err != nil {
		return fmt.Errorf("checking out %s: %w", hash, err)
	}

	fmt.Fprintf(c.out, "Checked out %s (%d turns)\n", cliui.HashStyle.Render(utils.Truncate(conv.HeadHash, 16)), len(conv.Turns))
	for _, turn := range conv.Turns {
		preview := utils.Truncate(utils.FirstLine(turn.Content), 60)
		fmt.Fprintf(c.out, "  [%s] %s\n", turn.Role, preview)
	}

	return nil
}
