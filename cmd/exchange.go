package cmd

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tokex-dev/tokex/pkg/client"
)

var (
	exchangeToken        string
	exchangeService      string
	exchangeSilo         string
	exchangeDuration     int64
	exchangeRepositories []string
	exchangePermissions  []string
)

var exchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Exchange an identity token for a downstream access token",
	Long: `Presents an OIDC identity token to the tokex server and requests a
short-lived access token for a downstream service.`,
	Example: `  # Request a silo token for one hour
  tokex exchange --token $JWT --service oxide --silo https://silo.example --duration 3600

  # Request a GitHub installation token
  tokex exchange --token $JWT --service github \
    --repository acme/app --permission contents:read`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		log.Info().Str("service", exchangeService).Msg("Requesting token exchange...")
		artifact, correlation, err := cli.Exchange(cmd.Context(), exchangeToken, client.ExchangeOptions{
			Service:      exchangeService,
			Silo:         exchangeSilo,
			Duration:     exchangeDuration,
			Repositories: exchangeRepositories,
			Permissions:  exchangePermissions,
		})
		if err != nil {
			return err
		}

		log.Info().Str("correlation_id", correlation).Msg("Exchange succeeded:")
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(artifact)
	},
}

func init() {
	rootCmd.AddCommand(exchangeCmd)

	exchangeCmd.Flags().StringVarP(&exchangeToken, "token", "t", "", "Identity token (JWT) to exchange")
	exchangeCmd.Flags().StringVarP(&exchangeService, "service", "s", "", "Target service (oxide, github)")
	exchangeCmd.Flags().StringVar(&exchangeSilo, "silo", "", "Silo URL (service oxide)")
	exchangeCmd.Flags().Int64Var(&exchangeDuration, "duration", 3600, "Token lifetime in seconds (service oxide)")
	exchangeCmd.Flags().StringArrayVar(&exchangeRepositories, "repository", nil, "Repository in owner/name format (service github, repeatable)")
	exchangeCmd.Flags().StringArrayVar(&exchangePermissions, "permission", nil, "Permission in scope:level format (service github, repeatable)")

	_ = exchangeCmd.MarkFlagRequired("token")
	_ = exchangeCmd.MarkFlagRequired("service")
}
