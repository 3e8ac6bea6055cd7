// Package writecmder provides the write command for saving the letter the
// chat is seeded with.
package writecmder

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/capsule/cmd/capsule/setup"
	"github.com/papercomputeco/capsule/pkg/cliui"
	"github.com/papercomputeco/capsule/pkg/dotdir"
	"github.com/papercomputeco/capsule/pkg/llm"
)

// ErrNoLetter is returned when neither --letter, --file nor stdin carries a
// letter body.
var ErrNoLetter = errors.New("no letter given; pass --letter, --file or pipe it on stdin")

type writeCommander struct {
	goals  string
	fears  string
	dreams string
	letter string
	file   string

	configDir string
	in        io.Reader
	out       io.Writer
}

const writeLongDesc string = `Write the letter to your future self.

The letter, together with your goals, fears and dreams, is sent as context
with every chat message so the reply comes from the future you who read it.
Writing a new letter clears the checkout, so the next chat opens a new
conversation with the letter as its first message.

The letter body comes from --letter, from --file, or from stdin when it is
piped in.

Examples:
  capsule write --letter "Dear future me, ..." --goals "ship the book"
  capsule write --file letter.md --fears "running out of time"
  cat letter.md | capsule write --dreams "a cabin by the sea"`

const writeShortDesc string = "Write the letter to your future self"

func NewWriteCmd() *cobra.Command {
	cmder := &writeCommander{}

	cmd := &cobra.Command{
		Use:   "write",
		Short: writeShortDesc,
		Long:  writeLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir = setup.ConfigDir(cmd)
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run()
		},
	}

	cmd.Flags().StringVar(&cmder.goals, "goals", "", "What you are working towards")
	cmd.Flags().StringVar(&cmder.fears, "fears", "", "What worries you")
	cmd.Flags().StringVar(&cmder.dreams, "dreams", "", "What you hope for")
	cmd.Flags().StringVar(&cmder.letter, "letter", "", "The letter body")
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Read the letter body from a file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("letter", "file")

	return cmd
}

func (c *writeCommander) run() error {
	body, err := c.body()
	if err != nil {
		return err
	}

	letter := &llm.LetterContext{
		Goals:  strings.TrimSpace(c.goals),
		Fears:  strings.TrimSpace(c.fears),
		Dreams: strings.TrimSpace(c.dreams),
		Letter: body,
	}
	if letter.IsEmpty() {
		return ErrNoLetter
	}

	manager := dotdir.NewManager()
	err = cliui.Step(c.out, "Sealing your letter", func() error {
		if err := manager.SaveLetter(letter, c.configDir); err != nil {
			return fmt.Errorf("saving letter: %w", err)
		}
		if err := manager.ClearCheckout(c.configDir); err != nil {
			return fmt.Errorf("clearing checkout: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render(`Run "capsule chat" to hear back from future you.`))
	return nil
}

// body returns the trimmed letter body from the first source that has one.
func (c *writeCommander) body() (string, error) {
	switch {
	case c.letter != "":
		return strings.TrimSpace(c.letter), nil

	case c.file == "-":
		return readAll(c.in)

	case c.file != "":
		data, err := os.ReadFile(c.file)
		if err != nil {
			return "", fmt.Errorf("reading letter file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil

	case !setup.IsTerminal(c.in):
		return readAll(c.in)
	}

	return "", ErrNoLetter
}

func readAll(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading letter: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
