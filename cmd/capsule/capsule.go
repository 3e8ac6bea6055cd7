// Package capsulecmder
package capsulecmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/capsule/cmd/capsule/chat"
	checkoutcmder "github.com/papercomputeco/capsule/cmd/capsule/checkout"
	configcmder "github.com/papercomputeco/capsule/cmd/capsule/config"
	historycmder "github.com/papercomputeco/capsule/cmd/capsule/history"
	servecmder "github.com/papercomputeco/capsule/cmd/capsule/serve"
	writecmder "github.com/papercomputeco/capsule/cmd/capsule/write"
	versioncmder "github.com/papercomputeco/capsule/cmd/version"
)

const capsuleLongDesc string = `Capsule is a conversation with your future self.

Write a letter about your goals, fears and dreams, then chat with the
future you who read it. Every reply streams in as it is written and each
conversation is kept in a content addressed DAG you can branch from.

Get started:
  capsule write --letter "Dear future me, ..."   Write your letter
  capsule chat                                   Talk to future you
  capsule history                                List past conversations
  capsule checkout <hash>                        Resume from any point
  capsule serve                                  Browse the DAG over HTTP`

const capsuleShortDesc string = "Capsule - talk to your future self"

func NewCapsuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "capsule",
		Short:        capsuleShortDesc,
		Long:         capsuleLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .capsule directory")

	// Add subcommands
	cmd.AddCommand(writecmder.NewWriteCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(checkoutcmder.NewCheckoutCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
