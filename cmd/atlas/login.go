package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/castleatlas/atlas/internal/models"
	"github.com/castleatlas/atlas/internal/services/totp"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Castle Atlas",
	Long:  `Login stores the session so later commands run as the signed-in user.`,
	Example: `  atlas login --email test@example.com
  atlas login --email user@example.com --totp-secret JBSWY3DPEHPK3PXP`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE:  runRegister,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE:  runWhoami,
}

var resetCmd = &cobra.Command{
	Use:     "reset-password",
	Aliases: []string{"reset"},
	Short:   "Reset a forgotten password",
}

var resetRequestCmd = &cobra.Command{
	Use:   "request <email>",
	Short: "Send a password reset code",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetRequest,
}

var resetConfirmCmd = &cobra.Command{
	Use:   "confirm <code>",
	Short: "Set a new password with a reset code",
	Args:  cobra.ExactArgs(1),
	RunE:  runResetConfirm,
}

var (
	loginEmail    string
	loginPassword string
	loginTOTP     string
	registerName  string
)

func init() {
	rootCmd.AddCommand(loginCmd, registerCmd, logoutCmd, whoamiCmd, resetCmd)
	resetCmd.AddCommand(resetRequestCmd, resetConfirmCmd)

	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVarP(&loginEmail, "email", "e", "",
			"Email address (required)")
		cmd.Flags().StringVarP(&loginPassword, "password", "p", "",
			"Password (will prompt if not provided)")
		_ = cmd.MarkFlagRequired("email")
	}

	loginCmd.Flags().StringVar(&loginTOTP, "totp-secret", "",
		"TOTP secret for 2FA (defaults to auth.totp_secret)")

	registerCmd.Flags().StringVarP(&registerName, "name", "n", "",
		"Display name (required)")
	_ = registerCmd.MarkFlagRequired("name")

	resetConfirmCmd.Flags().StringVarP(&loginPassword, "password", "p", "",
		"New password (will prompt if not provided)")
}

func runLogin(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if loginPassword == "" {
		if loginPassword, err = promptPassword("Password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	secret := loginTOTP
	if secret == "" {
		secret = cfg.Auth.TOTPSecret
	}

	if secret != "" {
		totpService := totp.NewService()

		// Validate the secret first
		if err := totpService.IsValidSecret(secret); err != nil {
			return fmt.Errorf("invalid totp secret: %w", err)
		}

		if !jsonOutput {
			// Show time remaining in current window for user awareness
			_, remaining := totpService.GetTimeWindow()
			printInfo("Using TOTP code (valid for %v)", remaining.Round(time.Second))
		}
	}

	user, err := c.Auth.Login(cmd.Context(), loginEmail, loginPassword, secret)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"user":    user,
		})
		return nil
	}

	printInfo("Signed in as %s <%s>", user.Name, user.Email)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if loginPassword == "" {
		if loginPassword, err = promptNewPassword(); err != nil {
			return err
		}
	}

	user, err := c.Auth.Register(cmd.Context(), registerName, loginEmail, loginPassword)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"user":    user,
		})
		return nil
	}

	printInfo("Signed in as %s <%s>", user.Name, user.Email)
	if c.MockAPI() != nil {
		printWarning("Accounts created on the built-in mock API last only for this run")
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.Logout(); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true})
		return nil
	}
	printSuccess("Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.Auth.EnsureAuthenticated(cmd.Context()); err != nil {
		return err
	}

	user := c.Auth.CurrentUser()
	if user == nil {
		return models.ErrNotAuthenticated
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"user":    user,
		})
		return nil
	}

	printField("Name", user.Name)
	printField("Email", user.Email)
	printField("ID", user.ID)
	printField("Two-factor", user.TOTPEnabled)
	return nil
}

func runResetRequest(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if err := c.Auth.RequestPasswordReset(cmd.Context(), args[0]); err != nil {
		return err
	}

	result := map[string]interface{}{"success": true}

	// The mock API has no mail delivery; show the code it would have sent.
	if mock := c.MockAPI(); mock != nil {
		if code, ok := mock.DeliveredResetToken(args[0]); ok {
			result["code"] = code
		}
	}

	if jsonOutput {
		printJSON(result)
		return nil
	}

	printSuccess("If the address is registered, a reset code is on its way")
	if code, ok := result["code"]; ok {
		printField("Code", code)
	}
	return nil
}

func runResetConfirm(cmd *cobra.Command, args []string) error {
	c, err := getClient()
	if err != nil {
		return err
	}

	if loginPassword == "" {
		if loginPassword, err = promptNewPassword(); err != nil {
			return err
		}
	}

	if err := c.Auth.ResetPassword(cmd.Context(), args[0], loginPassword); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true})
	}
	return nil
}
