// Package historycmder provides the history command for browsing stored
// conversations.
package historycmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/capsule/cmd/capsule/setup"
	"github.com/papercomputeco/capsule/pkg/cliui"
	"github.com/papercomputeco/capsule/pkg/config"
	"github.com/papercomputeco/capsule/pkg/history"
	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/utils"
)

var flagKeys = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
}

type historyCommander struct {
	flags struct {
		storage, sqlite, postgres string
	}
	raw bool

	cfg       *config.Config
	configDir string
	debug     bool
	out       io.Writer
	logger    *slog.Logger
}

const historyLongDesc string = `List stored conversations, or show one of them.

Without a hash, lists one line per conversation branch with its head hash,
length and opening message. The checked-out conversation is marked with *.

With a hash (or a unique prefix of one), prints the conversation up to
that node. Replies are rendered as markdown unless --raw is given.

Examples:
  capsule history
  capsule history 3f2a9c
  capsule history 3f2a9c --raw`

const historyShortDesc string = "List or show stored conversations"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [hash]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = setup.LoadConfig(cmd, flagKeys...)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.configDir = setup.ConfigDir(cmd)
			cmder.debug = setup.Debug(cmd)
			cmder.out = cmd.OutOrStdout()
			cmder.logger = setup.QuietLogger(cmd.ErrOrStderr(), cmder.debug)

			hash := ""
			if len(args) > 0 {
				hash = args[0]
			}
			return cmder.run(cmd.Context(), hash)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.flags.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlite)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print replies without markdown rendering")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, hash string) error {
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

	if hash == "" {
		return c.list(ctx, store)
	}
	return c.show(ctx, store, hash)
}

func (c *historyCommander) list(ctx context.Context, store *history.Store) error {
	convs, err := store.Conversations(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	if len(convs) == 0 {
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render(`No conversations yet. Run "capsule chat" to start one.`))
		return nil
	}

	head := store.Head()
	for _, conv := range convs {
		mark := " "
		if conv.HeadHash == head {
			mark = "*"
		}

		fmt.Fprintf(c.out, "%s %s  %s  %s\n",
			mark,
			cliui.HashStyle.Render(utils.Truncate(conv.HeadHash, 12)),
			cliui.DimStyle.Render(fmt.Sprintf("%3d turns  %s", len(conv.Turns), conv.UpdatedAt.Local().Format("2006-01-02 15:04"))),
			utils.Truncate(opening(conv.Turns), 60),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *historyCommander) show(ctx context.Context, store *history.Store, prefix string) error {
	hash, err := store.Resolve(ctx, prefix)
	if err != nil {
		return err
	}

	conv, err := store.Conversation(ctx, hash)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.HashStyle.Render(conv.HeadHash),
	)

	for _, turn := range conv.Turns {
		if turn.Role == llm.RoleUser {
			fmt.Fprintf(c.out, "%s %s\n\n", cliui.UserLabel, turn.Content)
			continue
		}

		content := turn.Content
		if !c.raw {
			if rendered, err := cliui.RenderMarkdown(content); err == nil {
				content = strings.TrimSpace(rendered)
			}
		}
		fmt.Fprintf(c.out, "%s %s\n\n", cliui.FutureLabel, content)
	}
	return nil
}

// opening is the first line of the first user turn.
func opening(turns []llm.Turn) string {
	for _, turn := range turns {
		if turn.Role == llm.RoleUser {
			return utils.FirstLine(turn.Content)
		}
	}
	return ""
}
