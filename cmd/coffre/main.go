package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/toccatech/coffre/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "coffre",
	Short:   "Authenticated file upload/download gateway",
	Long: `Coffre is a file gateway that lets applications upload users' files
into named resources, with content-type verification, per-file visibility,
and an external metadata store as the system of record.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		setupLogging(cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "HTTP server port (default: 3001, env: COFFRE_SERVER_PORT)")
	rootCmd.PersistentFlags().String("uploads-dir", "", "uploads directory (default: ./uploads, env: COFFRE_UPLOADS_DIR)")
	rootCmd.PersistentFlags().String("metastore-url", "", "metadata store GraphQL endpoint (env: COFFRE_METASTORE_URL)")
	rootCmd.PersistentFlags().String("auth-key", "", "PEM file with the RSA assertion signing key (env: COFFRE_AUTH_KEY_FILE)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var configFiles []string
	if cf, _ := cmd.Flags().GetString("config"); cf != "" {
		configFiles = append(configFiles, cf)
	}
	return config.Load(configFiles, cmd.Flags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
