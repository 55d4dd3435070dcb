package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Cypherspark/sms-survey/internal/adminauth"
	"github.com/Cypherspark/sms-survey/internal/app"
	"github.com/Cypherspark/sms-survey/internal/config"
	"github.com/Cypherspark/sms-survey/internal/db"
	"github.com/Cypherspark/sms-survey/internal/parser"
	"github.com/Cypherspark/sms-survey/internal/webhook"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		d, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer d.Close()
		if err := d.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Send today's check-in to every enrolled user now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.New(cmd.Context(), config.Load())
		if err != nil {
			return err
		}
		defer a.Close()
		sum, err := a.Dispatcher.Run(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

var signTimestamp int64

var signCmd = &cobra.Command{
	Use:   "sign [body-file]",
	Short: "Print X-Timestamp and X-Signature headers for a webhook body",
	Long: "Reads the body from the file argument or stdin and signs it with WEBHOOK_SECRET.\n" +
		"Useful for exercising /sms_webhook with curl.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := config.Load().WebhookSecret
		if secret == "" {
			return fmt.Errorf("WEBHOOK_SECRET is not set")
		}
		var body []byte
		var err error
		if len(args) == 1 {
			body, err = os.ReadFile(args[0])
		} else {
			body, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}
		ts := signTimestamp
		if ts == 0 {
			ts = time.Now().Unix()
		}
		tsStr := strconv.FormatInt(ts, 10)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", webhook.HeaderTimestamp, tsStr)
		fmt.Fprintf(out, "%s: %s\n", webhook.HeaderSignature, webhook.Sign(secret, tsStr, body))
		return nil
	},
}

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var adminTokenCmd = &cobra.Command{
	Use:   "admin-token",
	Short: "Mint a bearer token for the admin API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		tok, err := adminauth.Issue(cfg.AdminJWTSecret, cfg.AdminJWTIssuer, tokenSubject, tokenTTL, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <text>",
	Short: "Show how an SMS reply would be parsed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := parser.Parse(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	signCmd.Flags().Int64Var(&signTimestamp, "timestamp", 0, "epoch seconds to sign with (default now)")
	adminTokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "who the token identifies")
	adminTokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
