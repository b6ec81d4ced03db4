package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/shopacc-api/internal/app"
	"github.com/shopacc-api/internal/config"
	"github.com/shopacc-api/internal/domain"
	"github.com/shopacc-api/internal/infrastructure/awsconf"
	"github.com/shopacc-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/shopacc-api/internal/infrastructure/jwt"
	"github.com/shopacc-api/internal/pkg/credcrypt"
	"github.com/shopacc-api/internal/pkg/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.New(cfg.AppName+"-ctl", cfg.AppEnv, level)
}

func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg := config.Load()
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, logger, app.Options{})
}

func encryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt [plaintext]",
		Short: "Encrypt a game credential with ENCRYPTION_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, _ := cmd.Flags().GetString("key-version")
			c, err := credcrypt.New(config.Load().CredentialSecret)
			if err != nil {
				return err
			}
			ct, err := c.Encrypt(args[0], version)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ct)
			return nil
		},
	}
	cmd.Flags().String("key-version", credcrypt.CurrentKey, "Key version to encrypt with (v1, v2)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [userID]",
		Short: "Sign a bearer token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			role, _ := cmd.Flags().GetString("role")
			p, err := jwtinfra.NewProvider(config.Load())
			if err != nil {
				return err
			}
			tok, err := p.Sign(args[0], email, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Email claim")
	cmd.Flags().String("role", domain.RoleOwner, "Role claim")
	return cmd
}

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create missing DynamoDB tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			awsCfg, err := awsconf.Load(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			dynamo.Bootstrap(cmd.Context(), dynamo.NewClient(awsCfg, cfg.AWSEndpointURL), cfg.DynamoTables, logger)
			fmt.Fprintln(cmd.OutOrStdout(), "tables ready")
			return nil
		},
	}
}

func failuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "failures",
		Short: "List orders whose delivery failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			failures, err := a.FulfillmentService.ListFailures(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tSTATUS\tSTEP\tATTEMPTS\tUPDATED\tERROR")
			for _, f := range failures {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					f.OrderCode, f.Status, f.Step, f.Attempts, f.UpdatedAt.Format(time.RFC3339), f.LastError)
			}
			return w.Flush()
		},
	}
}

func retryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-fulfillment [orderCode]",
		Short: "Retry one failed delivery, or every open one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				if err := a.FulfillmentService.Retry(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s delivered\n", args[0])
				return nil
			}
			sum, err := a.FulfillmentService.RetryOpen(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "attempted=%d succeeded=%d failed=%d skipped=%d\n", sum.Attempted, sum.Succeeded, sum.Failed, sum.Skipped)
			return err
		},
	}
	cmd.Flags().Duration("timeout", 5*time.Minute, "Give up after this long")
	return cmd
}

func purgeOTPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-otps",
		Short: "Delete expired unverified OTP records",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			n, err := a.OTPService.PurgeExpired(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d\n", n)
			return err
		},
	}
}
