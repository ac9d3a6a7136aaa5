package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/cityinfo-api/pkg/interceptors"
)

var (
	// Token flags
	tokenSubject    string
	tokenGivenName  string
	tokenFamilyName string
	tokenCity       string
	tokenTTL        time.Duration
)

// tokenCmd mints a bearer token signed with the configured secret
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development bearer token",
	Long: `Mint a bearer token signed with the configured JWT secret.

Examples:
  cityinfo token --city Antwerp             # passes the points of interest policy
  cityinfo token --city Paris --ttl 5m      # authenticated but forbidden there`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is not configured")
		}
		validator := interceptors.NewTokenValidator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, cfg.Auth.Audience)

		claims := interceptors.Claims{
			GivenName:  tokenGivenName,
			FamilyName: tokenFamilyName,
			City:       tokenCity,
		}
		claims.Subject = tokenSubject

		token, err := validator.IssueToken(claims, tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "1", "Subject claim")
	tokenCmd.Flags().StringVar(&tokenGivenName, "given-name", "Kevin", "given_name claim")
	tokenCmd.Flags().StringVar(&tokenFamilyName, "family-name", "Dockx", "family_name claim")
	tokenCmd.Flags().StringVar(&tokenCity, "city", "Antwerp", "city claim checked by the points of interest policy")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
