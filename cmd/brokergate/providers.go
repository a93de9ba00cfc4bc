package main

import (
	"fmt"
	"strings"

	"github.com/openfold/brokergate/internal/app"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List registered providers and their capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app.App, log *zap.Logger) error {
			for _, c := range a.Registry.All() {
				d := c.Descriptor()
				caps := make([]string, 0, len(d.Capabilities))
				for _, cp := range d.Capabilities {
					caps = append(caps, string(cp))
				}
				status := "not configured"
				if len(a.Config.Secrets(d.ID)) > 0 {
					status = fmt.Sprintf("configured (%s)", a.Config.Mode(d.ID))
				}
				fmt.Printf("%-12s %-14s %s\n", d.ID, status, strings.Join(caps, ", "))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}
