package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/tokex-dev/tokex/internal/config"
)

var validateConfigFile string

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file and show the loaded policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		red := color.New(color.FgRed).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		cfg, err := config.Load(validateConfigFile)
		if err != nil {
			fmt.Printf("%s %v\n", red("✖ Configuration is invalid:"), err)
			return err
		}

		fmt.Printf("%s\n\n", green("✔ Configuration is valid."))
		fmt.Printf("Audience:  %s\n", cfg.Audience)
		fmt.Printf("Providers: %d\n", len(cfg.Providers))
		fmt.Printf("Silos:     %d\n", len(cfg.Services.Oxide))
		if cfg.Services.GitHub != nil {
			fmt.Printf("GitHub:    app %s\n", cfg.Services.GitHub.ClientID)
		}
		fmt.Println()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Rule", "Service", "Issuer", "Claims", "Where"})
		for _, rule := range cfg.Rules {
			hasClaims := "-"
			if rule.Match.Claims != nil {
				hasClaims = "yes"
			}
			where := truncate(rule.Match.Where, 40)
			if where == "" {
				where = "-"
			}
			issuer := rule.Match.Issuer
			if issuer == "" {
				issuer = "(any)"
			}
			t.AppendRow(table.Row{rule.Name, rule.Match.Service, issuer, hasClaims, where})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)

	configValidateCmd.Flags().StringVarP(&validateConfigFile, "config", "f", "tokex.yaml", "The tokex configuration file to validate")
}
