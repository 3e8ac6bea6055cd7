// Package chatcmder provides the chat command for talking to future you.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/capsule/cmd/capsule/setup"
	"github.com/papercomputeco/capsule/pkg/cliui"
	"github.com/papercomputeco/capsule/pkg/config"
	"github.com/papercomputeco/capsule/pkg/dotdir"
	"github.com/papercomputeco/capsule/pkg/history"
	"github.com/papercomputeco/capsule/pkg/session"
	"github.com/papercomputeco/capsule/pkg/stream"
	"github.com/papercomputeco/capsule/pkg/utils"
)

// flagKeys are the registry flags chat binds.
var flagKeys = []string{
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagEndpoint,
	config.FlagAPIKey,
	config.FlagModel,
	config.FlagTimeout,
	config.FlagHeaders,
	config.FlagEventStream,
	config.FlagBrokers,
	config.FlagTopic,
}

type chatCommander struct {
	flags struct {
		storage, sqlite, postgres                 string
		endpoint, apiKey, model, timeout, headers string
		eventstream, brokers, topic               string
	}

	cfg       *config.Config
	configDir string
	debug     bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

const chatLongDesc string = `Start a conversation with future you.

Each message is sent to the configured chat endpoint together with your
letter, and the reply streams in as it is written. Completed replies are
stored in the conversation DAG and the checkout moves to the newest turn,
so running "capsule chat" again picks up where you left off.

A fresh conversation opens with your letter when one has been written
(see "capsule write"). Press Ctrl+C while a reply streams to stop it, and
type /exit or press Ctrl+D to leave.

Use "capsule checkout <hash>" to resume from an earlier point, or
"capsule checkout" without a hash to start a new conversation.

Examples:
  capsule chat
  capsule chat --endpoint https://example.com/functions/v1/chat
  capsule chat --storage memory --model future-1`

const chatShortDesc string = "Talk to future you"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = setup.LoadConfig(cmd, flagKeys...)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir = setup.ConfigDir(cmd)
			cmder.debug = setup.Debug(cmd)
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.flags.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlite)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	config.AddStringFlag(cmd, config.Flags, config.FlagEndpoint, &cmder.flags.endpoint)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIKey, &cmder.flags.apiKey)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.flags.model)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimeout, &cmder.flags.timeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagHeaders, &cmder.flags.headers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.flags.eventstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagBrokers, &cmder.flags.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagTopic, &cmder.flags.topic)

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger = setup.QuietLogger(c.errOut, c.debug)

	client, err := setup.Transport(c.cfg, c.logger)
	if err != nil {
		return err
	}

	driver, err := setup.OpenDriver(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	events, err := setup.EventPool(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := events.Close(); err != nil {
			c.logger.Warn("closing event publisher", "error", err)
		}
	}()

	store, err := history.NewStore(&history.Config{
		Driver: driver,
		Dir:    c.configDir,
		Model:  c.cfg.Chat.Model,
		Logger: c.logger,
	})
	if err != nil {
		return err
	}

	letter, err := dotdir.NewManager().LoadLetter(c.configDir)
	if err != nil {
		return fmt.Errorf("loading letter: %w", err)
	}

	printer := cliui.NewStreamPrinter(c.out)
	sess, err := session.New(&session.Config{
		Initiator: client,
		Store:     store,
		Sink:      printer,
		Letter:    letter,
		Model:     c.cfg.Chat.Model,
		Events:    events,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}

	c.header(store.Head())

	if err := sess.Load(ctx); err != nil {
		return err
	}
	printer.Done()

	interactive := setup.IsTerminal(c.in)
	if interactive {
		printer.SetEchoUser(false)
	}

	if len(sess.Turns()) == 0 {
		if sess.HasLetter() {
			c.reply(ctx, printer, sess.SendLetter)
		} else {
			fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render(`No letter yet. Run "capsule write" first, or just say hello.`))
		}
	}

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		if interactive {
			fmt.Fprint(c.out, cliui.UserLabel+" ")
		}
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		c.reply(ctx, printer, func(ctx context.Context) (stream.Result, error) {
			return sess.Send(ctx, input)
		})
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	if interactive {
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *chatCommander) header(head string) {
	fmt.Fprintln(c.out)
	if head != "" {
		fmt.Fprintf(c.out, "  %s Resuming from %s\n",
			cliui.SuccessMark,
			cliui.HashStyle.Render(utils.Truncate(head, 16)),
		)
	} else {
		fmt.Fprintf(c.out, "  %s New conversation\n", cliui.DimStyle.Render("●"))
	}

	if c.cfg.Chat.Model != "" {
		fmt.Fprintf(c.out, "  %s %s\n",
			cliui.KeyStyle.Render("Model:"),
			cliui.NameStyle.Render(c.cfg.Chat.Model),
		)
	}
	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))
}

// reply runs one send with Ctrl+C bound to cancelling it. Outside a reply
// Ctrl+C keeps its default behaviour.
func (c *chatCommander) reply(ctx context.Context, printer *cliui.StreamPrinter, send func(context.Context) (stream.Result, error)) {
	replyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	res, err := send(replyCtx)
	stop()
	printer.Done()

	switch {
	case err != nil:
		fmt.Fprintf(c.errOut, "  %s %v\n\n", cliui.FailMark, err)
	case res.Notice == nil && errors.Is(res.Err, context.Canceled):
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Reply stopped."))
	}
}
