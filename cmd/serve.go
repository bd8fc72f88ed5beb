package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			color.Green("✓ Serving on port %d", a.Config.Server.Port)
			return a.Server().ListenAndServe(cmd.Context())
		},
	}
}
