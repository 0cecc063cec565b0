package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGroq    = "groq"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderBedrock = "bedrock"

	TraceSinkOpik = "opik"
	TraceSinkSQS  = "sqs"
	TraceSinkLog  = "log"
	TraceSinkNone = "none"

	SessionStoreMemory = "memory"
	SessionStoreRedis  = "redis"
	SessionStoreDynamo = "dynamodb"

	GreetingDeterministic = "deterministic"
	GreetingInstruction   = "instruction"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	// Shop persona and prompt policy
	ShopName         string
	BotName          string
	CatalogSource    string
	GreetingStrategy string
	LanguageGuard    bool

	// Completion provider
	LLMProvider    string
	LLMAPIKey      string
	LLMModel       string
	LLMBaseURL     string
	LLMTimeout     time.Duration
	LLMMaxTokens   int
	LLMTemperature float64

	// Trace sink
	TraceSink      string
	OpikAPIKey     string
	OpikWorkspace  string
	OpikProject    string
	OpikBaseURL    string
	TraceQueueSize int
	TraceWorkers   int
	TraceTimeout   time.Duration
	TraceQueueURL  string

	// Session storage
	SessionStore         string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool
	SessionTable         string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	provider := strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", ProviderGroq)))
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		ShopName:         getEnv("SHOP_NAME", "Trendy Fashion"),
		BotName:          getEnv("BOT_NAME", "ShopBot"),
		CatalogSource:    getEnv("CATALOG_SOURCE", ""),
		GreetingStrategy: strings.ToLower(getEnv("GREETING_STRATEGY", GreetingDeterministic)),
		LanguageGuard:    getEnvAsBool("LANGUAGE_GUARD", true),

		LLMProvider:    provider,
		LLMAPIKey:      getEnv("LLM_API_KEY", providerKey(provider)),
		LLMModel:       getEnv("LLM_MODEL", defaultModel(provider)),
		LLMBaseURL:     getEnv("LLM_BASE_URL", defaultBaseURL(provider)),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 0),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", -1),

		TraceSink:      strings.ToLower(getEnv("TRACE_SINK", TraceSinkOpik)),
		OpikAPIKey:     getEnv("OPIK_API_KEY", ""),
		OpikWorkspace:  getEnv("OPIK_WORKSPACE", ""),
		OpikProject:    getEnv("OPIK_PROJECT", "Trendy Fashion"),
		OpikBaseURL:    getEnv("OPIK_BASE_URL", "https://www.comet.com/opik/api"),
		TraceQueueSize: getEnvAsInt("TRACE_QUEUE_SIZE", 256),
		TraceWorkers:   getEnvAsInt("TRACE_WORKERS", 1),
		TraceTimeout:   getEnvAsDuration("TRACE_TIMEOUT", 10*time.Second),
		TraceQueueURL:  getEnv("TRACE_QUEUE_URL", ""),

		SessionStore:         strings.ToLower(getEnv("SESSION_STORE", SessionStoreMemory)),
		SessionTTL:           getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),
		SessionTable:         getEnv("SESSION_TABLE", "shopbot_sessions"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Validate reports the first missing or malformed setting. Callers treat any
// error as fatal at startup.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGroq, ProviderOpenAI, ProviderGemini:
		if strings.TrimSpace(c.LLMAPIKey) == "" {
			return &ConfigurationError{Field: "LLM_API_KEY", Reason: fmt.Sprintf("required for provider %q", c.LLMProvider)}
		}
	case ProviderBedrock:
		if strings.TrimSpace(c.LLMModel) == "" {
			return &ConfigurationError{Field: "LLM_MODEL", Reason: "bedrock model id required"}
		}
	default:
		return &ConfigurationError{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", c.LLMProvider)}
	}

	switch c.TraceSink {
	case TraceSinkOpik:
		if strings.TrimSpace(c.OpikAPIKey) == "" {
			return &ConfigurationError{Field: "OPIK_API_KEY", Reason: "required when TRACE_SINK=opik"}
		}
		if strings.TrimSpace(c.OpikWorkspace) == "" {
			return &ConfigurationError{Field: "OPIK_WORKSPACE", Reason: "required when TRACE_SINK=opik"}
		}
	case TraceSinkSQS:
		if strings.TrimSpace(c.TraceQueueURL) == "" {
			return &ConfigurationError{Field: "TRACE_QUEUE_URL", Reason: "required when TRACE_SINK=sqs"}
		}
	case TraceSinkLog, TraceSinkNone:
	default:
		return &ConfigurationError{Field: "TRACE_SINK", Reason: fmt.Sprintf("unsupported sink %q", c.TraceSink)}
	}

	switch c.SessionStore {
	case SessionStoreMemory, SessionStoreRedis:
	case SessionStoreDynamo:
		if strings.TrimSpace(c.SessionTable) == "" {
			return &ConfigurationError{Field: "SESSION_TABLE", Reason: "required when SESSION_STORE=dynamodb"}
		}
	default:
		return &ConfigurationError{Field: "SESSION_STORE", Reason: fmt.Sprintf("unsupported store %q", c.SessionStore)}
	}

	switch c.GreetingStrategy {
	case GreetingDeterministic, GreetingInstruction:
	default:
		return &ConfigurationError{Field: "GREETING_STRATEGY", Reason: fmt.Sprintf("unsupported strategy %q", c.GreetingStrategy)}
	}
	return nil
}

// ConfigurationError marks a missing or malformed startup setting.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func providerKey(provider string) string {
	switch provider {
	case ProviderGroq:
		return getEnv("GROQ_API_KEY", "")
	case ProviderOpenAI:
		return getEnv("OPENAI_API_KEY", "")
	case ProviderGemini:
		return getEnv("GEMINI_API_KEY", "")
	default:
		return ""
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderGroq:
		return "gemma2-9b-it"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-2.5-flash"
	default:
		return ""
	}
}

func defaultBaseURL(provider string) string {
	if provider == ProviderGroq {
		return "https://api.groq.com/openai/v1"
	}
	return ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
