package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/facecloud/internal/identity"
	"github.com/tbourn/facecloud/internal/repo"
	"github.com/tbourn/facecloud/internal/services"
)

// newIssueLinkCmd prints an auth link instead of emailing it, for local
// development and support.
func newIssueLinkCmd() *cobra.Command {
	var req services.LinkRequest
	cmd := &cobra.Command{
		Use:   "issue-link EMAIL",
		Short: "Print a magic-link or recovery link for an account",
		Example: `  facecloud issue-link owner@bondiclinic.com.au
  facecloud issue-link owner@bondiclinic.com.au --type recovery
  facecloud issue-link new@clinic.test --name "Dr Lee" --redirect /clinics`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			db, err := repo.Open(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}

			idp := identity.NewService(db, cfg.Auth.JWTSecret, cfg.Auth.SessionTTL, cfg.Auth.TokenTTL)
			auth := services.NewAuthService(idp, cfg.Auth.SiteURL, cfg.Auth.VerifyTimeout)

			req.Email = args[0]
			link, err := auth.RequestLink(cmd.Context(), req)
			if err != nil {
				return err
			}
			if link == "" {
				return errors.New("no account is registered under that email")
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Type, "type", "magiclink", "link type: magiclink or recovery")
	cmd.Flags().StringVar(&req.FullName, "name", "", "full name used when the account is created")
	cmd.Flags().StringVar(&req.RedirectTo, "redirect", "", "in-app path to open after confirming")
	cmd.Flags().StringVar(&req.Flow, "flow", "", `"code" issues a one-time code link instead of a token link`)
	return cmd
}
