package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to MangaDex",
	Long:  "Sign in with the configured username, password and API client. MDBULK_PASSWORD supplies the password.",
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		remember, _ := cmd.Flags().GetBool("remember")
		creds := e.credentials()
		if creds.Username == "" || creds.Password == "" {
			return errors.New("username and password are required, use --username and MDBULK_PASSWORD")
		}
		if creds.ClientID == "" || creds.ClientSecret == "" {
			return errors.New("an API client is required, use --client-id and --client-secret")
		}
		if err := e.controller.Login(e.ctx, creds, remember); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", creds.Username)
		if remember {
			fmt.Fprintln(cmd.OutOrStdout(), "Login remembered for later runs")
		}
		return nil
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the remembered login",
	RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
		if err := e.controller.Resume(e.ctx); err != nil {
			e.logger.Debug("no session to revoke")
		}
		if err := e.controller.Logout(e.ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	}),
}

func init() {
	loginCmd.Flags().Bool("remember", false, "keep the login for later runs")
}
