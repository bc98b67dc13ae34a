package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/toccatech/coffre/clientcli"
)

var (
	version = "dev"

	cfgFile     string
	profileName string
	server      string
	token       string
	jsonOutput  bool
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:     "coffre-cli",
	Version: version,
	Short:   "Client for a Coffre file server",
	Long: `Coffre CLI - Client for a Coffre file server.

Uploads go into a named resource, which controls the content types the
server accepts. Downloads and info respect the file's visibility: public
and unlisted files need no credential, private files need the owner's
session token.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ~/.coffre/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&profileName, "profile", "p", "", "profile name (env: COFFRE_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", "", "server URL (default: http://localhost:3001, env: COFFRE_SERVER)")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", "", "session token (env: COFFRE_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(deleteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildConfig merges config from file, env vars, and flags (flags take precedence).
func buildConfig() (*clientcli.Config, error) {
	cfg := &clientcli.Config{}

	path := cfgFile
	if path == "" {
		defaultPath, err := clientcli.DefaultConfigPath()
		if err == nil {
			path = defaultPath
		}
	}

	if path != "" {
		cf, err := clientcli.LoadConfigFile(path)
		if err != nil {
			return nil, err
		}

		name := profileName
		if name == "" {
			name = os.Getenv("COFFRE_PROFILE")
		}

		if profile, err := cf.GetProfile(name); err == nil {
			cfg.Endpoint = profile.Endpoint
			cfg.Token = profile.Token
		}
	}

	if env := os.Getenv("COFFRE_SERVER"); env != "" {
		cfg.Endpoint = env
	}
	if env := os.Getenv("COFFRE_TOKEN"); env != "" {
		cfg.Token = env
	}

	if server != "" {
		cfg.Endpoint = server
	}
	if token != "" {
		cfg.Token = token
	}

	return cfg, nil
}

func getClient() (*clientcli.Client, error) {
	cfg, err := buildConfig()
	if err != nil {
		return nil, err
	}
	return clientcli.New(cfg)
}

func getFormatter() clientcli.Formatter {
	return clientcli.Formatter{JSON: jsonOutput, Quiet: quiet}
}
