package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/avvvet/skillbuddy-chat/internal/console"
)

// SIGINT keeps its default behavior; a turn is saved before its answer
// is printed.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return console.NewREPL(a.chat, os.Stdin, os.Stdout).Run(cmd.Context())
	},
}
