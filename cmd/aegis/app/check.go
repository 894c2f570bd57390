package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aegisauth/aegis/pkg/config"
	"github.com/aegisauth/aegis/pkg/identity"
	"github.com/aegisauth/aegis/pkg/pdp"
)

var checkCmd = &cobra.Command{
	Use:   "check <user> <action> <resource-type>",
	Short: "Ask the PDP whether a user may perform an action",
	Long: `Send a one-off decision query to the configured PDP and report the
verdict. The user may be an opaque key or a JWT; a JWT's subject and string
claims are extracted into the query. Exits non-zero when access is denied.`,
	Args: cobra.ExactArgs(3),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().String("tenant", "", "Tenant to attach to the query")
	checkCmd.Flags().StringSlice("attr", nil, "Context attribute as key=value (repeatable)")

	if err := viper.BindPFlag("tenant", checkCmd.Flags().Lookup("tenant")); err != nil {
		slog.Error("Error binding tenant flag", "error", err)
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	userArg, action, resourceType := args[0], args[1], args[2]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	attrs, err := cmd.Flags().GetStringSlice("attr")
	if err != nil {
		return fmt.Errorf("failed to get attr flag: %w", err)
	}
	attributes, err := parseAttributes(attrs)
	if err != nil {
		return err
	}

	tenant := viper.GetString("tenant")
	if tenant == "" {
		tenant = cfg.DefaultTenant
	}

	user := identity.Parse(userArg)
	client := newPDPClient(cfg)
	query := &pdp.Query{
		User:   pdp.User{Key: user.Key, Attributes: user.Attributes},
		Action: action,
		Resource: pdp.Resource{
			Type:    resourceType,
			Tenant:  tenant,
			Context: attributes,
		},
	}

	allowed, err := client.Allowed(ctx, query)
	if err != nil {
		return fmt.Errorf("decision query failed: %w", err)
	}

	if !allowed {
		slog.Warn("Access denied", "user", user.Key, "action", action, "resource", resourceType)
		return fmt.Errorf("access denied")
	}
	slog.Info("Access allowed", "user", user.Key, "action", action, "resource", resourceType)
	return nil
}

// loadConfig loads the SDK configuration, honoring the persistent --config flag.
func loadConfig() (*config.Config, error) {
	var opts []config.Option
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newPDPClient(cfg *config.Config) *pdp.Client {
	return pdp.NewClient(cfg.PDPAddress,
		pdp.WithToken(cfg.Token),
		pdp.WithTimeout(cfg.Timeout),
	)
}

func parseAttributes(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	attrs := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", pair)
		}
		attrs[key] = value
	}
	return attrs, nil
}
