package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var updatePolicyCmd = &cobra.Command{
	Use:   "update-policy",
	Short: "Trigger a policy refresh on the PDP",
	Long: `Ask the configured PDP to refetch its policy from the cloud service.
Use this after publishing policy changes to shorten propagation time.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := newPDPClient(cfg).UpdatePolicy(context.Background()); err != nil {
			return fmt.Errorf("policy update failed: %w", err)
		}
		return nil
	},
}

var updatePolicyDataCmd = &cobra.Command{
	Use:   "update-policy-data",
	Short: "Trigger a policy data refresh on the PDP",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := newPDPClient(cfg).UpdatePolicyData(context.Background()); err != nil {
			return fmt.Errorf("policy data update failed: %w", err)
		}
		return nil
	},
}
