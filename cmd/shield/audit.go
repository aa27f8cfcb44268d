package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/infra/auditlogs"
	"github.com/spf13/cobra"
)

const secretEnv = "AUDIT_HMAC_SECRET"

func newAuditCmd() *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect stored audit records",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <file>",
		Short: "Check the signature of a stored audit record",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuditVerify,
	}
	verifyCmd.Flags().String("secret", "", "HMAC secret; defaults to "+secretEnv+" or the config file")
	auditCmd.AddCommand(verifyCmd)
	return auditCmd
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	secret, err := resolveSecret(cmd)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read record: %w", err)
	}

	record, err := auditlogs.VerifyRecord(raw, secret)
	if errors.Is(err, auditlogs.ErrRecordTampered) {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if err != nil {
		return err
	}

	out := json.NewEncoder(cmd.OutOrStdout())
	out.SetIndent("", "  ")
	return out.Encode(map[string]interface{}{
		"valid":     true,
		"id":        record.Event.ID,
		"type":      record.Event.Type,
		"timestamp": record.Event.Timestamp,
	})
}

func resolveSecret(cmd *cobra.Command) (string, error) {
	if secret, _ := cmd.Flags().GetString("secret"); secret != "" {
		return secret, nil
	}
	if secret := os.Getenv(secretEnv); secret != "" {
		return secret, nil
	}
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Audit.HMACSecret == "" {
		return "", errors.New("no audit hmac secret configured")
	}
	return cfg.Audit.HMACSecret, nil
}
