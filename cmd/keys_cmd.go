package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"chat-keystore/internal/app"
	"chat-keystore/models"

	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "View and manage stored provider keys",
	}
	cmd.AddCommand(keysListCmd())
	cmd.AddCommand(keysSetCmd())
	cmd.AddCommand(keysDeleteCmd())
	cmd.AddCommand(keysAuditCmd())
	return cmd
}

func keysListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active keys for the default user (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := loadApp()
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())
			if err := requireStore(application); err != nil {
				return err
			}

			stored, err := application.Store().GetAllAPIKeys(cmd.Context(), application.Keys().UserID())
			if err != nil {
				return err
			}
			masked := make(map[string]string, len(stored))
			for p, k := range stored {
				masked[p] = models.MaskSecret(k)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(masked, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(masked) == 0 {
				fmt.Println("No keys stored.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "PROVIDER\tKEY\n")
			for _, info := range models.Providers() {
				if k, ok := masked[string(info.Name)]; ok {
					fmt.Fprintf(tw, "%s\t%s\n", info.Name, k)
				}
			}
			tw.Flush()
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func keysSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [provider] [api-key]",
		Short: "Store a key in the token store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := loadApp()
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			token, err := application.Keys().StoreAPIKey(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Saved %s key %s\n", token.Provider, models.MaskSecret(token.APIKey))
			return nil
		},
	}
}

func keysDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [provider]",
		Short: "Deactivate a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := loadApp()
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())

			deleted, err := application.Keys().RemoveAPIKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("no stored key for %s", args[0])
			}
			fmt.Printf("Deactivated %s key\n", args[0])
			return nil
		},
	}
}

func keysAuditCmd() *cobra.Command {
	var jsonOutput bool
	var userID string
	var allUsers bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List every stored record, inactive ones included",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, application, err := loadApp()
			if err != nil {
				return err
			}
			defer application.Shutdown(cmd.Context())
			if err := requireStore(application); err != nil {
				return err
			}

			if userID == "" && !allUsers {
				userID = application.Keys().UserID()
			}
			entries, err := application.Audit(cmd.Context(), userID)
			if err != nil {
				return err
			}
			printAudit(entries, jsonOutput)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&userID, "user", "", "user ID (default: configured user)")
	cmd.Flags().BoolVar(&allUsers, "all", false, "include every user")
	return cmd
}

func printAudit(entries []app.AuditEntry, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(entries) == 0 {
		fmt.Println("No records found.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "USER\tPROVIDER\tKEY\tACTIVE\tKNOWN\tUPDATED\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\t%s\n",
			e.UserID,
			e.Provider,
			e.APIKey,
			e.IsActive,
			e.KnownProvider,
			e.UpdatedAt.Format(time.DateTime),
		)
	}
	tw.Flush()
}
