package cli

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ankittk/missioncontrol/internal/webhook"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate API keys and webhook tokens",
	}
	cmd.AddCommand(newTokenAPIKeyCmd())
	cmd.AddCommand(newTokenJWTCmd())
	return cmd
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func appendEnv(path, key, value string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := f.WriteString(key + "=" + value + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func newTokenAPIKeyCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:     "apikey",
		Aliases: []string{"generate"},
		Short:   "Generate a random API key for the /api and /stream routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := randomHex(32)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "Generated API key (save it somewhere safe):")
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, "  "+key)
			_, _ = fmt.Fprintln(out)
			if envFile != "" {
				if err := appendEnv(envFile, "MISSIONCONTROL_API_KEY", key); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Appended MISSIONCONTROL_API_KEY to %s\n", envFile)
				_, _ = fmt.Fprintln(out, "Start the server with: missioncontrol serve --foreground --env-file "+envFile)
			} else {
				_, _ = fmt.Fprintln(out, "Use it:")
				_, _ = fmt.Fprintln(out, "  1. On the server: export MISSIONCONTROL_API_KEY="+key)
				_, _ = fmt.Fprintln(out, "     Or add to .env and run: missioncontrol serve --foreground --env-file .env")
				_, _ = fmt.Fprintln(out, "  2. In clients: send header X-API-Key: <key> or query ?api_key=<key>")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Append MISSIONCONTROL_API_KEY to this file (e.g. .env)")
	return cmd
}

func newTokenJWTCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "jwt",
		Short: "Issue an HS256 webhook bearer token (webhook.auth: jwt)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				_, cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				secret = cfg.Webhook.JWTSecret
			}
			if secret == "" {
				return errors.New("--secret or webhook.jwt_secret (MISSIONCONTROL_WEBHOOK_JWT_SECRET) is required")
			}
			tok, err := webhook.NewJWTVerifier(secret).Issue(subject, ttl)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default: webhook.jwt_secret from config)")
	cmd.Flags().StringVar(&subject, "subject", "runtime", "Token subject (the calling runtime)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (0 = no expiry)")
	return cmd
}
