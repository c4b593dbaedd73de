// Package config provides application settings loaded from environment variables.
//
// Settings are created via Load() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup
//
// A loaded Settings value is never mutated. Components receive the parts
// they need by value.

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM       LLMConfig
	Limits    Limits
	Tools     ToolPolicy
	Logging   LoggingConfig
	Telemetry TelemetryConfig

	// JournalPath is the sqlite file turns are recorded to. Empty disables it.
	JournalPath string
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   uint32
	Temperature float64
}

// Limits bounds a single agent turn.
type Limits struct {
	MaxSteps                uint32
	MaxToolCalls            uint32
	MaxToolCallsPerStep     uint32
	MaxConsecutiveToolSteps uint32
	MaxInputChars           int
	MaxOutputChars          int
	ToolTimeout             time.Duration
	ModelTimeout            time.Duration
	ModelMaxRetries         uint32
}

// ToolPolicy configures what the built-in tools may touch.
type ToolPolicy struct {
	AllowedDomains    []string
	AllowSubdomains   bool
	FetchMaxBytes     int64
	FollowRedirects   bool
	MaxRedirects      int
	FetchContentTypes []string
	NotesDir          string
	AllowOverwrite    bool
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// TelemetryConfig enables OTLP export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// DefaultLimits returns the limits used when no environment overrides exist.
func DefaultLimits() Limits {
	return Limits{
		MaxSteps:                8,
		MaxToolCalls:            8,
		MaxToolCallsPerStep:     4,
		MaxConsecutiveToolSteps: 4,
		MaxInputChars:           4000,
		MaxOutputChars:          8000,
		ToolTimeout:             5 * time.Second,
		ModelTimeout:            20 * time.Second,
		ModelMaxRetries:         2,
	}
}

// DefaultContentTypes are the media types fetch_url accepts by default.
var DefaultContentTypes = []string{
	"text/html",
	"text/plain",
	"text/markdown",
	"application/json",
	"application/xml",
	"text/xml",
}

// DefaultToolPolicy returns the tool policy used when no environment overrides exist.
func DefaultToolPolicy() ToolPolicy {
	return ToolPolicy{
		AllowedDomains:    []string{"example.com"},
		FetchMaxBytes:     64 * 1024,
		FollowRedirects:   true,
		MaxRedirects:      5,
		FetchContentTypes: append([]string(nil), DefaultContentTypes...),
		NotesDir:          "notes",
	}
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	defaultModel string
	apiKeyEnv    string
	baseURLEnv   string
	defaultURL   string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"ollama":    {"qwen2.5:3b", "", "OLLAMA_BASE_URL", "http://localhost:11434"},
	"openai":    {"gpt-4.1-mini", "OPENAI_API_KEY", "OPENAI_BASE_URL", ""},
	"anthropic": {"claude-sonnet-4-20250514", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", ""},
	"gemini":    {"gemini-2.5-flash", "GEMINI_API_KEY", "", ""},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// Load reads settings from the environment.
// Returns an error if the provider is unknown, a required key is missing or
// any variable holds an invalid value.
func Load() (Settings, error) {
	llmCfg, err := loadLLM()
	if err != nil {
		return Settings{}, err
	}
	limits, err := loadLimits()
	if err != nil {
		return Settings{}, err
	}
	policy, err := loadToolPolicy()
	if err != nil {
		return Settings{}, err
	}
	insecure, err := getEnvBool("OTEL_INSECURE", false)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		LLM:    llmCfg,
		Limits: limits,
		Tools:  policy,
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "text"),
		},
		Telemetry: TelemetryConfig{
			Endpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    insecure,
			ServiceName: getEnvString("SERVICE_NAME", "notewright"),
		},
		JournalPath: getEnvString("AGENT_JOURNAL_PATH", ""),
	}, nil
}

// MustLoad reads settings from the environment.
// Panics if the environment is invalid.
// Use this only when configuration errors should be fatal.
func MustLoad() Settings {
	settings, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func loadLLM() (LLMConfig, error) {
	provider := NormalizeProvider(getEnvString("MODEL_PROVIDER", "ollama"))
	info, err := getProviderInfo(provider)
	if err != nil {
		return LLMConfig{}, err
	}

	var apiKey string
	if info.apiKeyEnv != "" {
		apiKey = strings.TrimSpace(os.Getenv(info.apiKeyEnv))
		if apiKey == "" {
			return LLMConfig{}, fmt.Errorf("%s must be set when MODEL_PROVIDER=%s", info.apiKeyEnv, provider)
		}
	}

	var baseURL string
	if info.baseURLEnv != "" {
		baseURL = strings.TrimRight(getEnvString(info.baseURLEnv, info.defaultURL), "/")
	}

	maxTokens, err := getEnvPositiveUint32("LLM_MAX_TOKENS", 1024)
	if err != nil {
		return LLMConfig{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return LLMConfig{}, err
	}

	return LLMConfig{
		Provider:    provider,
		Model:       getEnvString("MODEL", info.defaultModel),
		APIKey:      apiKey,
		BaseURL:     baseURL,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, nil
}

func loadLimits() (Limits, error) {
	d := DefaultLimits()
	var l Limits
	var err error

	if l.MaxSteps, err = getEnvPositiveUint32("AGENT_MAX_STEPS", d.MaxSteps); err != nil {
		return Limits{}, err
	}
	if l.MaxToolCalls, err = getEnvPositiveUint32("AGENT_MAX_TOOL_CALLS", d.MaxToolCalls); err != nil {
		return Limits{}, err
	}
	if l.MaxToolCallsPerStep, err = getEnvPositiveUint32("AGENT_MAX_TOOL_CALLS_PER_STEP", d.MaxToolCallsPerStep); err != nil {
		return Limits{}, err
	}
	if l.MaxConsecutiveToolSteps, err = getEnvPositiveUint32("AGENT_MAX_CONSECUTIVE_TOOL_STEPS", d.MaxConsecutiveToolSteps); err != nil {
		return Limits{}, err
	}
	inputChars, err := getEnvPositiveUint32("AGENT_MAX_INPUT_CHARS", uint32(d.MaxInputChars))
	if err != nil {
		return Limits{}, err
	}
	outputChars, err := getEnvPositiveUint32("AGENT_MAX_OUTPUT_CHARS", uint32(d.MaxOutputChars))
	if err != nil {
		return Limits{}, err
	}
	l.MaxInputChars, l.MaxOutputChars = int(inputChars), int(outputChars)

	if l.ToolTimeout, err = getEnvPositiveMillis("TOOL_TIMEOUT_MS", d.ToolTimeout); err != nil {
		return Limits{}, err
	}
	if l.ModelTimeout, err = getEnvPositiveMillis("MODEL_TIMEOUT_MS", d.ModelTimeout); err != nil {
		return Limits{}, err
	}
	if l.ModelMaxRetries, err = getEnvUint32("MODEL_MAX_RETRIES", d.ModelMaxRetries); err != nil {
		return Limits{}, err
	}
	return l, nil
}

func loadToolPolicy() (ToolPolicy, error) {
	d := DefaultToolPolicy()
	var p ToolPolicy
	var err error

	if p.AllowedDomains, err = ParseAllowedDomains(getEnvString("FETCH_URL_ALLOWED_DOMAINS", strings.Join(d.AllowedDomains, ","))); err != nil {
		return ToolPolicy{}, fmt.Errorf("invalid value for FETCH_URL_ALLOWED_DOMAINS: %w", err)
	}
	if p.AllowSubdomains, err = getEnvBool("FETCH_URL_ALLOW_SUBDOMAINS", d.AllowSubdomains); err != nil {
		return ToolPolicy{}, err
	}
	maxBytes, err := getEnvPositiveUint32("FETCH_URL_MAX_BYTES", uint32(d.FetchMaxBytes))
	if err != nil {
		return ToolPolicy{}, err
	}
	p.FetchMaxBytes = int64(maxBytes)
	if p.FollowRedirects, err = getEnvBool("FETCH_URL_FOLLOW_REDIRECTS", d.FollowRedirects); err != nil {
		return ToolPolicy{}, err
	}
	maxRedirects, err := getEnvUint32("FETCH_URL_MAX_REDIRECTS", uint32(d.MaxRedirects))
	if err != nil {
		return ToolPolicy{}, err
	}
	p.MaxRedirects = int(maxRedirects)
	if raw := os.Getenv("FETCH_URL_CONTENT_TYPES"); raw != "" {
		p.FetchContentTypes = parseList(raw)
		if len(p.FetchContentTypes) == 0 {
			return ToolPolicy{}, errors.New("FETCH_URL_CONTENT_TYPES must list at least one media type")
		}
	} else {
		p.FetchContentTypes = d.FetchContentTypes
	}
	p.NotesDir = getEnvString("NOTES_DIR", d.NotesDir)
	if p.AllowOverwrite, err = getEnvBool("SAVE_NOTE_ALLOW_OVERWRITE", d.AllowOverwrite); err != nil {
		return ToolPolicy{}, err
	}
	return p, nil
}

// NormalizeProvider converts provider aliases to canonical names.
func NormalizeProvider(provider string) string {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q (supported: %s)", provider, strings.Join(SupportedProviders(), ", "))
	}
	return info, nil
}

// DefaultModelFor returns the default model for a provider.
func DefaultModelFor(provider string) (string, error) {
	info, err := getProviderInfo(NormalizeProvider(provider))
	if err != nil {
		return "", err
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the sorted list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// ParseAllowedDomains normalizes a comma-separated domain allowlist.
// Entries are trimmed of whitespace and dots, lowercased, sorted and
// deduplicated. The result is never empty.
func ParseAllowedDomains(raw string) ([]string, error) {
	seen := make(map[string]struct{})
	var domains []string
	for _, part := range strings.Split(raw, ",") {
		d := strings.ToLower(strings.Trim(strings.TrimSpace(part), "."))
		if d == "" {
			continue
		}
		for _, r := range d {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-') {
				return nil, fmt.Errorf("domain %q contains invalid character %q", d, r)
			}
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		domains = append(domains, d)
	}
	if len(domains) == 0 {
		return nil, errors.New("at least one domain is required")
	}
	sort.Strings(domains)
	return domains, nil
}

func parseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.ToLower(strings.TrimSpace(part)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Environment variable helpers with proper error handling

func getEnvString(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvPositiveUint32(key string, defaultVal uint32) (uint32, error) {
	v, err := getEnvUint32(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return v, nil
}

func getEnvPositiveMillis(key string, defaultVal time.Duration) (time.Duration, error) {
	ms, err := getEnvPositiveUint32(key, uint32(defaultVal/time.Millisecond))
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal, nil
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid value for %s: %q: expected true or false", key, val)
}
