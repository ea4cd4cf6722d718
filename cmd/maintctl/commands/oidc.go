package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kevinmaint/maint-api/internal/services/oidc"
)

// NewOIDCCmd creates the oidc command
func NewOIDCCmd(settings func() (oidc.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oidc",
		Short: "Inspect the identity provider configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Resolve login endpoints and fetch the signing keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := settings()
			if err != nil {
				return err
			}
			provider := oidc.NewProvider(s)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Issuer: %s\n", s.Issuer)
			login, err := provider.GetLoginConfig(ctx)
			if err != nil {
				return fmt.Errorf("failed to resolve login config: %w", err)
			}
			fmt.Fprintf(out, "Authorization endpoint: %s\n", login.AuthorizationEndpoint)
			fmt.Fprintf(out, "Token endpoint: %s\n", login.TokenEndpoint)

			jwksURL := provider.JWKSURL(ctx)
			fmt.Fprintf(out, "JWKS: %s\n", jwksURL)
			keys, err := oidc.NewKeyCache(oidc.DefaultKeyTTL).Keys(ctx, jwksURL)
			if err != nil {
				return err
			}
			if keys.Len() == 0 {
				return fmt.Errorf("JWKS at %s has no keys", jwksURL)
			}
			fmt.Fprintf(out, "✓ %d signing keys available\n", keys.Len())
			return nil
		},
	})

	return cmd
}
