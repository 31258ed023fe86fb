// Package cli is the terminal portal: a thin command surface over the
// session and data controllers.
package cli

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aussieverify/aussieverify/config"
	"github.com/aussieverify/aussieverify/internal/portal/client"
	"github.com/aussieverify/aussieverify/internal/portal/data"
	"github.com/aussieverify/aussieverify/internal/portal/session"
	"github.com/aussieverify/aussieverify/types"
	"github.com/spf13/cobra"
)

const configMissingNotice = "configuration missing: set AUSSIEVERIFY_API_URL and AUSSIEVERIFY_API_KEY to enable backend features"

// New builds the portal command tree.
func New() *cobra.Command {
	portalCmd := &cobra.Command{
		Use:   "portal",
		Short: "Aussie Verify terminal portal",
	}

	portalCmd.AddCommand(
		newLoginCmd(),
		newRegisterCmd(),
		newLogoutCmd(),
		newForgotCmd(),
		newResetCmd(),
		newDashboardCmd(),
		newAddCmd(),
		newListCmd(),
		newDeleteCmd(),
		newProfileCmd(),
		newExportCmd(),
	)
	return portalCmd
}

// connect builds the backend client, or reports the degraded condition.
// Missing configuration is detected here, before any command logic runs.
func connect() (client.Client, error) {
	cfg := config.LoadClientConfig()
	if !cfg.Configured() {
		return nil, fmt.Errorf("%s", configMissingNotice)
	}
	return client.NewHTTPClient(cfg)
}

func notify(notice string) {
	fmt.Println(notice)
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <email> <password>",
		Short: "Sign in to the portal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := session.NewController(cmd.Context(), api, session.StartParams{}, notify)
			defer ctrl.Close()

			if err := ctrl.Login(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("Signed in.")
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register <email> <password>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := session.NewController(cmd.Context(), api, session.StartParams{}, notify)
			defer ctrl.Close()

			if err := ctrl.Register(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if ctrl.Session() != nil {
				fmt.Println("Account created. Signed in.")
			}
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := session.NewController(cmd.Context(), api, session.StartParams{}, notify)
			defer ctrl.Close()

			return ctrl.Logout(cmd.Context())
		},
	}
}

func newForgotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot <email>",
		Short: "Request a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := session.NewController(cmd.Context(), api, session.StartParams{}, notify)
			defer ctrl.Close()

			return ctrl.SendReset(cmd.Context(), args[0])
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <token> <new-password>",
		Short: "Complete a password reset from the emailed link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := session.NewController(cmd.Context(), api, session.StartParams{
				Type:  session.RecoveryMarker,
				Token: args[0],
			}, notify)
			defer ctrl.Close()

			return ctrl.UpdatePassword(cmd.Context(), args[1])
		},
	}
}

func newDashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show verification counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := data.NewController(api)
			if err := ctrl.Refresh(cmd.Context()); err != nil {
				return err
			}

			counts := ctrl.Counts()
			fmt.Printf("Total checks:  %d\n", counts.Total)
			fmt.Printf("%s: %d\n", types.OutcomeVerified.Label(), counts.Verified)
			fmt.Printf("%s: %d\n", types.OutcomeReview.Label(), counts.Review)
			fmt.Printf("%s: %d\n", types.OutcomeFlagged.Label(), counts.Flagged)
			return nil
		},
	}
}

func newAddCmd() *cobra.Command {
	var draft types.VerificationDraft
	var outcome string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new verification check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			draft.Outcome = types.Outcome(outcome)

			ctrl := data.NewController(api)
			if err := ctrl.AddRecord(cmd.Context(), draft); err != nil {
				return err
			}
			fmt.Println("Check recorded.")
			return nil
		},
	}

	cmd.Flags().StringVar(&draft.ContractorName, "name", "", "contractor/business name (required)")
	cmd.Flags().StringVar(&draft.Trade, "trade", "", "trade")
	cmd.Flags().StringVar(&draft.ABN, "abn", "", "ABN")
	cmd.Flags().StringVar(&draft.Licence, "licence", "", "licence number")
	cmd.Flags().StringVar(&draft.Insurance, "insurance", "", "insurance details")
	cmd.Flags().StringVar(&draft.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&outcome, "outcome", string(types.OutcomeVerified), "verified, review or flagged")
	return cmd
}

func newListCmd() *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List verification checks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := data.NewController(api)
			if err := ctrl.Refresh(cmd.Context()); err != nil {
				return err
			}

			records := ctrl.FilteredRecords(query)
			if len(records) == 0 {
				fmt.Println("No checks found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tNAME\tTRADE\tOUTCOME")
			for _, record := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					record.ID,
					types.FormatTimestamp(record.CreatedAt.Format(time.RFC3339)),
					record.ContractorName,
					record.Trade,
					record.Outcome.Label(),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&query, "search", "", "filter checks by any field")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a verification check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := data.NewController(api)
			if err := ctrl.RemoveRecord(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("Check deleted.")
			return nil
		},
	}
}

func newProfileCmd() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your business profile",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			profile, err := api.Profile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Organisation: %s\n", profile.OrgName)
			fmt.Printf("Role:         %s\n", profile.Role)
			fmt.Printf("Phone:        %s\n", profile.Phone)
			fmt.Printf("Region:       %s\n", profile.Region)
			return nil
		},
	}

	var saved types.Profile
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Update the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			ctrl := data.NewController(api)
			if err := ctrl.SaveProfile(cmd.Context(), saved); err != nil {
				return err
			}
			fmt.Println("Profile saved.")
			return nil
		},
	}
	saveCmd.Flags().StringVar(&saved.OrgName, "org", "", "organisation name")
	saveCmd.Flags().StringVar(&saved.Role, "role", "", "your role")
	saveCmd.Flags().StringVar(&saved.Phone, "phone", "", "phone number")
	saveCmd.Flags().StringVar(&saved.Region, "region", "", "state or territory code, e.g. NSW")

	profileCmd.AddCommand(showCmd, saveCmd)
	return profileCmd
}

func newExportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export your profile and checks to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := connect()
			if err != nil {
				return err
			}
			defer api.Close()

			current := api.CurrentSession()
			if current == nil {
				return client.ErrNoSession
			}

			ctrl := data.NewController(api)
			if err := ctrl.Refresh(cmd.Context()); err != nil {
				return err
			}

			payload, name, err := ctrl.Export(current.UserID, current.Email, time.Now())
			if err != nil {
				return err
			}

			path := name
			if outDir != "" {
				path = strings.TrimRight(outDir, "/") + "/" + name
			}
			if err := os.WriteFile(path, payload, 0o644); err != nil {
				return err
			}
			fmt.Printf("Exported to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "dir", "", "directory to write the export into")
	return cmd
}
