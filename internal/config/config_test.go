package config

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MegaGrindStone/polaris/internal/services"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load() = %+v, want defaults %+v", cfg, Default())
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Config
		wantErr bool
	}{
		{
			name:    "empty llm section keeps gemini",
			content: "port: \"9090\"\n",
			want: Config{
				Port:          "9090",
				Renderer:      "markup",
				FrameInterval: 50 * time.Millisecond,
				LogLevel:      "info",
				LLM:           LLM{Provider: ProviderGemini, Model: "gemini-2.5-flash"},
			},
		},
		{
			name: "openai takes its default model",
			content: `
renderer: markdown
frameInterval: 20ms
llm:
  provider: openai
  baseURL: http://localhost:1234/v1
`,
			want: Config{
				Port:          "8080",
				Renderer:      "markdown",
				FrameInterval: 20 * time.Millisecond,
				LogLevel:      "info",
				LLM: LLM{
					Provider: ProviderOpenAI,
					Model:    "gpt-4o-mini",
					BaseURL:  "http://localhost:1234/v1",
				},
			},
		},
		{
			name:    "unknown provider",
			content: "llm:\n  provider: watson\n",
			wantErr: true,
		},
		{
			name:    "ollama without model",
			content: "llm:\n  provider: ollama\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.want {
				t.Errorf("Load() = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

func TestLoadParameters(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
llm:
  provider: anthropic
  parameters:
    maxTokens: 512
    temperature: 0.5
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p := cfg.LLM.Parameters
	if p.MaxTokens == nil || *p.MaxTokens != 512 {
		t.Errorf("MaxTokens = %v, want 512", p.MaxTokens)
	}
	if p.Temperature == nil || *p.Temperature != 0.5 {
		t.Errorf("Temperature = %v, want 0.5", p.Temperature)
	}
	if p.TopP != nil {
		t.Errorf("TopP = %v, want nil", *p.TopP)
	}
}

func TestValidateMaxTokens(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		wantErr   bool
	}{
		{name: "in range", maxTokens: 1024},
		{name: "largest int32", maxTokens: math.MaxInt32},
		{name: "zero", maxTokens: 0, wantErr: true},
		{name: "negative", maxTokens: -1, wantErr: true},
		{name: "overflows int32", maxTokens: math.MaxInt32 + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mt := tt.maxTokens
			l := LLM{Provider: ProviderGemini, Parameters: services.LLMParameters{MaxTokens: &mt}}
			if err := l.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAPIKeyFallback(t *testing.T) {
	t.Setenv("API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	l := LLM{Provider: ProviderGemini}
	if got := l.apiKey(); got != "" {
		t.Errorf("apiKey() = %q, want empty", got)
	}

	t.Setenv("GEMINI_API_KEY", "gemini-key")
	if got := l.apiKey(); got != "gemini-key" {
		t.Errorf("apiKey() = %q, want gemini-key", got)
	}

	t.Setenv("API_KEY", "primary-key")
	if got := l.apiKey(); got != "primary-key" {
		t.Errorf("apiKey() = %q, want primary-key", got)
	}

	l.APIKey = "configured"
	if got := l.apiKey(); got != "configured" {
		t.Errorf("apiKey() = %q, want configured", got)
	}
}

func TestService(t *testing.T) {
	tests := []struct {
		name    string
		llm     LLM
		want    any
		wantErr bool
	}{
		{name: "gemini", llm: LLM{Provider: ProviderGemini}, want: services.Gemini{}},
		{name: "openai", llm: LLM{Provider: ProviderOpenAI}, want: services.OpenAI{}},
		{name: "anthropic", llm: LLM{Provider: ProviderAnthropic}, want: services.Anthropic{}},
		{name: "openrouter", llm: LLM{Provider: ProviderOpenRouter}, want: services.OpenRouter{}},
		{name: "ollama", llm: LLM{Provider: ProviderOllama, Model: "llama3"}, want: services.Ollama{}},
		{name: "unknown", llm: LLM{Provider: "watson"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := tt.llm.Service(nopLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Service() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got, want := typeName(svc), typeName(tt.want); got != want {
				t.Errorf("Service() type = %s, want %s", got, want)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Setenv("POLARIS_CONFIG", "/etc/polaris.yaml")
	got, err := Path()
	if err != nil {
		t.Fatalf("Path() error = %v", err)
	}
	if got != "/etc/polaris.yaml" {
		t.Errorf("Path() = %q, want /etc/polaris.yaml", got)
	}
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
