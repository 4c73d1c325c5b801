package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/kgraph/internal/config"
	"github.com/rohankatakam/kgraph/internal/errors"
)

var (
	configureOpenAIKey bool
	configureGeminiKey bool
	configureProvider  string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Store LLM API keys in the OS keychain and pick a provider",
	Long: `Prompts for an API key and stores it in the OS keychain, never in the
config file. Piped input is accepted, so keys can come from a secret manager:

  op read op://dev/openai/key | kgraph configure --openai-key --provider openai

When no keychain is available the key is written to the config file instead.`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureOpenAIKey, "openai-key", false, "set the OpenAI (or compatible endpoint) API key")
	configureCmd.Flags().BoolVar(&configureGeminiKey, "gemini-key", false, "set the Gemini API key")
	configureCmd.Flags().StringVar(&configureProvider, "provider", "", "llm provider: openai, gemini, compatible or none")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	if !configureOpenAIKey && !configureGeminiKey && configureProvider == "" {
		return errors.ValidationErrorf("nothing to configure: pass --openai-key, --gemini-key or --provider")
	}

	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	fileCfg, err := config.Load(path)
	if err != nil {
		fileCfg = config.Default()
	}

	km := config.NewKeyringManager()
	keychain := km.IsAvailable()
	if !keychain {
		fmt.Fprintln(os.Stderr, "OS keychain not available (headless system or Linux without libsecret)")
		fmt.Fprintln(os.Stderr, "Keys will be stored in the config file instead.")
	}

	type keyItem struct {
		set    bool
		item   string
		label  string
		target *string
	}
	items := []keyItem{
		{configureOpenAIKey, config.KeyringOpenAIItem, "OpenAI API key", &fileCfg.LLM.OpenAIKey},
		{configureGeminiKey, config.KeyringGeminiItem, "Gemini API key", &fileCfg.LLM.GeminiKey},
	}

	for _, it := range items {
		if !it.set {
			continue
		}
		secret, err := config.ReadSecret(fmt.Sprintf("Enter %s: ", it.label), os.Stdin)
		if err != nil {
			return err
		}
		if secret == "" {
			return errors.ValidationErrorf("%s cannot be empty", it.label)
		}

		if keychain {
			if err := km.Set(it.item, secret); err != nil {
				return err
			}
			fileCfg.LLM.UseKeychain = true
			fmt.Printf("%s %s saved to %s\n", it.label, config.MaskSecret(secret), keychainLocation())
			continue
		}
		*it.target = secret
		fileCfg.LLM.UseKeychain = false
		fmt.Printf("%s %s will be saved to %s (plaintext)\n", it.label, config.MaskSecret(secret), path)
	}

	if configureProvider != "" {
		fileCfg.LLM.Provider = configureProvider
	}
	if err := fileCfg.Validate(); err != nil {
		return err
	}

	if keychain {
		if err := fileCfg.Save(path); err != nil {
			return err
		}
	} else if err := fileCfg.SaveWithSecrets(path); err != nil {
		return err
	}

	fmt.Printf("Configuration saved to %s (provider: %s)\n", path, fileCfg.LLM.Provider)
	return nil
}

func keychainLocation() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain (Keychain Access.app, service \"kgraph\")"
	case "windows":
		return "Windows Credential Manager (service \"kgraph\")"
	default:
		return "Secret Service keyring (service \"kgraph\")"
	}
}
