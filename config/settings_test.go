package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("MODEL", "")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "ollama" {
		t.Errorf("expected provider 'ollama', got %q", settings.LLM.Provider)
	}
	if settings.LLM.Model != "qwen2.5:3b" {
		t.Errorf("expected model 'qwen2.5:3b', got %q", settings.LLM.Model)
	}
	if settings.LLM.BaseURL != "http://localhost:11434" {
		t.Errorf("unexpected base url %q", settings.LLM.BaseURL)
	}
	if settings.Limits != DefaultLimits() {
		t.Errorf("expected default limits, got %+v", settings.Limits)
	}
	if !reflect.DeepEqual(settings.Tools.AllowedDomains, []string{"example.com"}) {
		t.Errorf("unexpected allowlist %v", settings.Tools.AllowedDomains)
	}
	if settings.Tools.AllowOverwrite {
		t.Error("overwrite should be disabled by default")
	}
	if settings.Tools.NotesDir != "notes" {
		t.Errorf("expected notes dir 'notes', got %q", settings.Tools.NotesDir)
	}
}

func TestLoadWithAlias(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "claude")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.LLM.Provider != "anthropic" {
		t.Errorf("expected provider 'anthropic' (normalized from 'claude'), got %q", settings.LLM.Provider)
	}
	if settings.LLM.APIKey != "test-key" {
		t.Errorf("expected api key to be loaded")
	}
}

func TestLoadUnknownProvider(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "unknown_provider")
	if _, err := Load(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoadOpenAIRequiresKey(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is missing")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error should name the missing variable, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "ollama")
	t.Setenv("AGENT_MAX_STEPS", "3")
	t.Setenv("TOOL_TIMEOUT_MS", "750")
	t.Setenv("MODEL_MAX_RETRIES", "0")
	t.Setenv("SAVE_NOTE_ALLOW_OVERWRITE", "yes")
	t.Setenv("FETCH_URL_ALLOWED_DOMAINS", " Docs.Rust-Lang.org., example.com,example.com ")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Limits.MaxSteps != 3 {
		t.Errorf("expected 3 max steps, got %d", settings.Limits.MaxSteps)
	}
	if settings.Limits.ToolTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms tool timeout, got %v", settings.Limits.ToolTimeout)
	}
	if settings.Limits.ModelMaxRetries != 0 {
		t.Errorf("zero retries must be allowed, got %d", settings.Limits.ModelMaxRetries)
	}
	if !settings.Tools.AllowOverwrite {
		t.Error("expected overwrite to be enabled")
	}
	want := []string{"docs.rust-lang.org", "example.com"}
	if !reflect.DeepEqual(settings.Tools.AllowedDomains, want) {
		t.Errorf("expected %v, got %v", want, settings.Tools.AllowedDomains)
	}
}

func TestLoadRejectsZeroLimits(t *testing.T) {
	keys := []string{
		"AGENT_MAX_STEPS",
		"AGENT_MAX_TOOL_CALLS",
		"AGENT_MAX_TOOL_CALLS_PER_STEP",
		"AGENT_MAX_CONSECUTIVE_TOOL_STEPS",
		"AGENT_MAX_INPUT_CHARS",
		"AGENT_MAX_OUTPUT_CHARS",
		"TOOL_TIMEOUT_MS",
		"MODEL_TIMEOUT_MS",
	}
	for _, key := range keys {
		t.Run(key, func(t *testing.T) {
			t.Setenv("MODEL_PROVIDER", "ollama")
			t.Setenv(key, "0")
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s=0", key)
			}
			if !strings.Contains(err.Error(), key+" must be greater than 0") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"AGENT_MAX_STEPS", "abc"},
		{"MODEL_MAX_RETRIES", "-1"},
		{"SAVE_NOTE_ALLOW_OVERWRITE", "maybe"},
		{"LLM_TEMPERATURE", "hot"},
		{"FETCH_URL_ALLOWED_DOMAINS", " , ."},
		{"FETCH_URL_ALLOWED_DOMAINS", "exa_mple.com"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv("MODEL_PROVIDER", "ollama")
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "on"} {
		t.Setenv("NOTEWRIGHT_TEST_BOOL", v)
		got, err := getEnvBool("NOTEWRIGHT_TEST_BOOL", false)
		if err != nil || !got {
			t.Errorf("%q: expected true, got %v (%v)", v, got, err)
		}
	}
	for _, v := range []string{"0", "false", "No", "off"} {
		t.Setenv("NOTEWRIGHT_TEST_BOOL", v)
		got, err := getEnvBool("NOTEWRIGHT_TEST_BOOL", true)
		if err != nil || got {
			t.Errorf("%q: expected false, got %v (%v)", v, got, err)
		}
	}
}

func TestMustLoadPanicsOnInvalidProvider(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "unknown")
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for unknown provider")
		}
	}()
	MustLoad()
}

func TestSupportedProviders(t *testing.T) {
	got := SupportedProviders()
	want := []string{"anthropic", "gemini", "ollama", "openai"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
