package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers",
	}
	cmd.AddCommand(newAuthTokenCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var (
		user     string
		name     string
		role     string
		database string
		schema   string
		secret   string
		expires  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a dev-mode JWT token and save it to the active profile",
		Long:  "Generate an HS256 JWT token for development and testing. The token is saved to the active profile automatically.",
		Example: `  # Generate an operator token scoped to the prod database
  sqlguardctl auth token --user alice --role OPERATOR --database prod --secret dev-secret

  # Generate an admin token with custom expiry
  sqlguardctl auth token --user root --role ADMIN --secret mysecret --expires 48h`,
		RunE: func(_ *cobra.Command, _ []string) error {
			now := time.Now()
			claims := jwt.MapClaims{
				"sub":  user,
				"role": role,
				"iat":  now.Unix(),
				"exp":  now.Add(expires).Unix(),
			}
			if name != "" {
				claims["name"] = name
			}
			if database != "" {
				claims["database"] = database
			}
			if schema != "" {
				claims["schema"] = schema
			}

			token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
			signed, err := token.SignedString([]byte(secret))
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}

			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = &UserConfig{Profiles: map[string]Profile{}}
			}
			profileName := cfg.CurrentProfile
			if profileName == "" {
				profileName = "default"
				cfg.CurrentProfile = profileName
			}
			p := cfg.Profiles[profileName]
			p.Token = signed
			cfg.Profiles[profileName] = p
			if err := SaveUserConfig(cfg); err != nil {
				return fmt.Errorf("save token to profile: %w", err)
			}

			fmt.Fprintln(os.Stdout, signed)
			return nil
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "Subject (user id) for the token")
	cmd.Flags().StringVar(&name, "name", "", "Display name claim")
	cmd.Flags().StringVar(&role, "role", "VIEWER", "Role claim (VIEWER, OPERATOR, APPROVER, ADMIN)")
	cmd.Flags().StringVar(&database, "database", "", "Default database claim")
	cmd.Flags().StringVar(&schema, "schema", "", "Default schema claim")
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 shared secret (must match the server's JWT_SECRET)")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}
