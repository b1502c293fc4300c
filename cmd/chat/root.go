package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MegaGrindStone/polaris/internal/config"
	"github.com/MegaGrindStone/polaris/internal/conversation"
	"github.com/MegaGrindStone/polaris/internal/transcript"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type options struct {
	Persona  string     `mapstructure:"persona"`
	LogLevel string     `mapstructure:"logLevel"`
	LLM      config.LLM `mapstructure:"llm"`
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to Polaris from the terminal",
		Long: `Chat with Polaris line by line. Each line read from stdin is sent as one message and the
reply is printed as it streams. Flags can also be set with POLARIS_ environment variables,
for example POLARIS_LLM_PROVIDER=openai.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := loadOptions(v)
			if err != nil {
				return err
			}
			return runChat(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "optional config file (yaml, toml or json)")
	flags.StringP("provider", "p", config.ProviderGemini, "llm provider: gemini, openai, ollama, anthropic or openrouter")
	flags.StringP("model", "m", "", "model name, defaults per provider")
	flags.String("api-key", "", "api key, defaults to the provider's environment variable")
	flags.String("host", "", "ollama host")
	flags.String("base-url", "", "api base url for openai compatible or proxied endpoints")
	flags.String("persona", "", "system instruction, defaults to the Polaris persona")
	flags.StringP("log-level", "l", "warn", "log level")

	bind := map[string]string{
		"llm.provider": "provider",
		"llm.model":    "model",
		"llm.apiKey":   "api-key",
		"llm.host":     "host",
		"llm.baseURL":  "base-url",
		"persona":      "persona",
		"logLevel":     "log-level",
		"config":       "config",
	}
	for key, flag := range bind {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}

	v.SetEnvPrefix("POLARIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return cmd
}

func loadOptions(v *viper.Viper) (options, error) {
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return options{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var opts options
	if err := v.Unmarshal(&opts); err != nil {
		return options{}, fmt.Errorf("error decoding options: %w", err)
	}
	if err := opts.LLM.Validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

func runChat(cmd *cobra.Command, opts options) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: config.Config{LogLevel: opts.LogLevel}.Level(),
	}))

	service, err := opts.LLM.Service(logger)
	if err != nil {
		return err
	}

	tr := transcript.New(logger)
	if err := tr.Load(cmd.Context()); err != nil {
		return err
	}
	ctrl := conversation.New(service, opts.Persona, tr, logger)
	ctrl.Initialize(cmd.Context())

	return newTerminal(ctrl, cmd.OutOrStdout()).Run(cmd.Context(), cmd.InOrStdin())
}
