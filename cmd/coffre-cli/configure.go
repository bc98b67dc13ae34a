package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/toccatech/coffre/clientcli"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Manage server profiles",
	Long: `Manage server profiles in the configuration file.

Profiles allow you to save connection settings for multiple Coffre servers
and easily switch between them using --profile or COFFRE_PROFILE.

Configuration is stored in ~/.coffre/config.yaml`,
}

var configureListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all configured profiles",
	Long: `List all profiles configured in the config file.

The default profile is marked with an asterisk (*).`,
	RunE: runConfigureList,
}

var configureAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a new profile",
	Long: `Add a new profile interactively.

You will be prompted for:
  - Endpoint URL
  - Session token
  - Whether to set as default

The endpoint connection will be tested before saving.`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigureAdd,
}

var configureRemoveCmd = &cobra.Command{
	Use:     "remove <name>",
	Aliases: []string{"rm"},
	Short:   "Remove a profile",
	Args:    cobra.ExactArgs(1),
	RunE:    runConfigureRemove,
}

var configureSetDefaultCmd = &cobra.Command{
	Use:   "set-default <name>",
	Short: "Set the default profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigureSetDefault,
}

func init() {
	configureCmd.AddCommand(configureListCmd)
	configureCmd.AddCommand(configureAddCmd)
	configureCmd.AddCommand(configureRemoveCmd)
	configureCmd.AddCommand(configureSetDefaultCmd)

	rootCmd.AddCommand(configureCmd)
}

func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	path, err := clientcli.DefaultConfigPath()
	if err != nil {
		return "config.yaml"
	}
	return path
}

func runConfigureList(_ *cobra.Command, _ []string) error {
	cfg, err := clientcli.LoadConfigFile(getConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if len(cfg.Profiles) == 0 {
		fmt.Println("No profiles configured.")
		fmt.Println("Run 'coffre-cli configure add <name>' to create one.")
		return nil
	}

	defaultProfile, _ := cfg.GetDefaultProfile()
	for _, p := range cfg.Profiles {
		marker := " "
		if defaultProfile != nil && p.Name == defaultProfile.Name {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s\n", marker, p.Name, p.Endpoint)
	}
	return nil
}

func runConfigureAdd(_ *cobra.Command, args []string) error {
	name := args[0]
	configPath := getConfigPath()

	cfg, err := clientcli.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	endpointPrompt := promptui.Prompt{
		Label:   "Endpoint URL",
		Default: clientcli.DefaultEndpoint,
		Validate: func(input string) error {
			if input == "" {
				return errors.New("endpoint URL is required")
			}
			parsedURL, parseErr := url.Parse(input)
			if parseErr != nil {
				return fmt.Errorf("invalid URL: %w", parseErr)
			}
			if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
				return errors.New("URL must start with http:// or https://")
			}
			return nil
		},
	}
	endpoint, err := endpointPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	tokenPrompt := promptui.Prompt{
		Label: "Session token (leave empty for anonymous access)",
		Mask:  '*',
	}
	sessionToken, err := tokenPrompt.Run()
	if err != nil {
		return handlePromptError(err)
	}

	// First profile is always default
	setAsDefault := len(cfg.Profiles) == 0
	if !setAsDefault {
		defaultPrompt := promptui.Prompt{
			Label:     "Set as default profile",
			IsConfirm: true,
		}
		if _, promptErr := defaultPrompt.Run(); promptErr == nil {
			setAsDefault = true
		}
	}

	fmt.Print("Testing connection... ")
	if connErr := testServerConnection(endpoint); connErr != nil {
		fmt.Println("FAILED")
		fmt.Printf("Warning: could not connect to server: %v\n", connErr)

		continuePrompt := promptui.Prompt{
			Label:     "Save profile anyway",
			IsConfirm: true,
		}
		if _, promptErr := continuePrompt.Run(); promptErr != nil {
			fmt.Println("Cancelled.")
			return nil
		}
	} else {
		fmt.Println("OK")
	}

	profile := clientcli.Profile{
		Name:     name,
		Endpoint: endpoint,
		Token:    sessionToken,
	}

	if addErr := cfg.AddProfile(profile); addErr != nil {
		return addErr
	}
	if setAsDefault {
		_ = cfg.SetDefault(name)
	}

	if err := clientcli.SaveConfigFile(configPath, cfg); err != nil {
		return err
	}

	fmt.Printf("Profile '%s' saved.\n", name)
	return nil
}

func runConfigureRemove(_ *cobra.Command, args []string) error {
	configPath := getConfigPath()

	cfg, err := clientcli.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.RemoveProfile(args[0]); err != nil {
		return err
	}

	if err := clientcli.SaveConfigFile(configPath, cfg); err != nil {
		return err
	}

	fmt.Printf("Profile '%s' removed.\n", args[0])
	return nil
}

func runConfigureSetDefault(_ *cobra.Command, args []string) error {
	configPath := getConfigPath()

	cfg, err := clientcli.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.SetDefault(args[0]); err != nil {
		return err
	}

	if err := clientcli.SaveConfigFile(configPath, cfg); err != nil {
		return err
	}

	fmt.Printf("Default profile set to '%s'.\n", args[0])
	return nil
}

func handlePromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) {
		fmt.Println("Cancelled.")
		return nil
	}
	return err
}

// testServerConnection checks the server's welcome route responds.
func testServerConnection(endpoint string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
