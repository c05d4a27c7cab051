package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/tokex-dev/tokex/pkg/client"
)

func getClient() (*client.Client, error) {
	// we need the user to provide some server address first
	server := viper.GetString(TokexAddrKey)
	if server == "" {
		return nil, fmt.Errorf("server address not configured, provide via --server or env")
	}
	return client.New(server), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
