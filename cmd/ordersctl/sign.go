package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/config"
	"github.com/imrishuroy/course-orderflow/internal/signature"
)

func (c *cli) signWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-webhook [file]",
		Short: "Print the X-Signature for a webhook body",
		Long: `Sign a webhook body with the configured webhook secret. The body is
read from file, or from stdin when file is "-" or omitted.

Examples:
  ordersctl sign-webhook captured.json
  cat captured.json | ordersctl sign-webhook`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				body, err = io.ReadAll(cmd.InOrStdin())
			} else {
				body, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read body: %w", err)
			}
			sig, err := signature.NewVerifier(c.cfg.Gateway.WebhookSecret).Sign(body)
			if err != nil {
				return fmt.Errorf("webhook secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

func (c *cli) signPaymentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-payment <gateway-order-ref> <gateway-payment-ref>",
		Short: "Print the checkout signature the client would forward to verify",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := c.cfg.Gateway.KeySecret
			if c.cfg.Gateway.Mode == config.ModeMock {
				secret = c.cfg.Gateway.MockSecret
			}
			sig, err := signature.NewVerifier(secret).Sign(signature.PaymentMessage(args[0], args[1]))
			if err != nil {
				return fmt.Errorf("key secret: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

func (c *cli) issueTokenCmd() *cobra.Command {
	var (
		userID int64
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return errors.New("--user must be positive")
			}
			if c.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			tok, err := auth.NewAuthenticator(c.cfg.Auth.JWTSecret).Issue(auth.Caller{UserID: userID, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&role, "role", "", `role, e.g. "admin"`)
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
