package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"chat-keystore/models"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show token store health and where each provider's key comes from",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, application, err := loadApp()
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			ctx := cmd.Context()
			backend := application.Store().Backend()
			if backend == "" {
				backend = "none"
			}
			fmt.Printf("Token store: %s (%s", application.StoreStatus(ctx), backend)
			if cfg.Store.URLSource != "" {
				fmt.Printf(", from %s env", cfg.Store.URLSource)
			}
			fmt.Println(")")

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "PROVIDER\tSET\tSOURCE\n")
			for _, info := range models.Providers() {
				status := application.Keys().CheckStatus(ctx, string(info.Name))
				source := string(status.SourceName())
				if source == "" {
					source = "-"
				}
				fmt.Fprintf(tw, "%s\t%v\t%s\n", info.Name, status.IsSet, source)
			}
			tw.Flush()
			return nil
		},
	}
}
