package mainconfig

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dounykim/E-commerce-chatbot-groq/internal/catalog"
	appconfig "github.com/dounykim/E-commerce-chatbot-groq/internal/config"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/conversation"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/observability/metrics"
	"github.com/dounykim/E-commerce-chatbot-groq/internal/tracing"
	"github.com/dounykim/E-commerce-chatbot-groq/pkg/logging"
)

// AWSLoader returns the shared AWS config, loading it on first use.
type AWSLoader func() (aws.Config, error)

// NewAWSLoader memoizes LoadAWSConfig so binaries that never touch AWS do not
// resolve credentials.
func NewAWSLoader(ctx context.Context, cfg *appconfig.Config) AWSLoader {
	var (
		once   sync.Once
		awsCfg aws.Config
		err    error
	)
	return func() (aws.Config, error) {
		once.Do(func() {
			awsCfg, err = LoadAWSConfig(ctx, cfg)
		})
		return awsCfg, err
	}
}

// Chat bundles the session manager with everything that must be released on
// shutdown.
type Chat struct {
	Manager  *conversation.Manager
	Recorder *tracing.Recorder
	Metrics  *metrics.ChatMetrics
	Catalog  catalog.Text

	closers []func() error
}

// BuildChat wires catalog, provider, trace sink and session store from cfg.
func BuildChat(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Chat, error) {
	if logger == nil {
		logger = logging.Default()
	}
	awsLoader := NewAWSLoader(ctx, cfg)
	chat := &Chat{Metrics: metrics.NewChatMetrics(reg)}

	cat, err := LoadCatalog(ctx, cfg, awsLoader)
	if err != nil {
		return nil, err
	}
	chat.Catalog = cat

	client, closeClient, err := NewLLMClient(ctx, cfg, awsLoader)
	if err != nil {
		return nil, err
	}
	chat.closers = append(chat.closers, closeClient)

	sink, err := NewTraceSink(cfg, awsLoader, logger)
	if err != nil {
		_ = chat.Close(ctx)
		return nil, err
	}
	chat.Recorder = tracing.NewRecorder(sink, logger,
		tracing.WithQueueSize(cfg.TraceQueueSize),
		tracing.WithWorkers(cfg.TraceWorkers),
		tracing.WithSendTimeout(cfg.TraceTimeout),
		tracing.WithMetrics(chat.Metrics),
	)

	store, closeStore, err := NewSessionStore(ctx, cfg, awsLoader)
	if err != nil {
		_ = chat.Close(ctx)
		return nil, err
	}
	chat.closers = append(chat.closers, closeStore)

	completer := conversation.NewCompleter(client, conversation.CompleterConfig{
		Provider:    cfg.LLMProvider,
		Model:       cfg.LLMModel,
		Timeout:     cfg.LLMTimeout,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}, chat.Metrics)

	composer := conversation.NewComposer(conversation.ComposerConfig{
		ShopName: cfg.ShopName,
		BotName:  cfg.BotName,
		Strategy: conversation.ParseGreetingStrategy(cfg.GreetingStrategy),
	})

	chat.Manager = conversation.NewManager(composer, cat, completer, logger,
		conversation.WithSessionStore(store),
		conversation.WithTraceRecorder(chat.Recorder),
		conversation.WithMetrics(chat.Metrics),
		conversation.WithSessionTTL(cfg.SessionTTL),
		conversation.WithLanguageGuard(cfg.LanguageGuard),
	)

	logger.Info("chat wired",
		"provider", cfg.LLMProvider,
		"model", cfg.LLMModel,
		"trace_sink", sink.Name(),
		"session_store", cfg.SessionStore,
		"catalog_fingerprint", cat.Fingerprint(),
		"catalog_categories", cat.Categories(),
	)
	return chat, nil
}

// Close drains pending traces and releases provider and store clients.
func (c *Chat) Close(ctx context.Context) error {
	var errs []error
	if c.Recorder != nil {
		if err := c.Recorder.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace recorder: %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadCatalog reads CATALOG_SOURCE, using S3 for s3:// sources.
func LoadCatalog(ctx context.Context, cfg *appconfig.Config, awsLoader AWSLoader) (catalog.Text, error) {
	var objects catalog.ObjectGetter
	if catalog.IsS3(cfg.CatalogSource) {
		awsCfg, err := awsLoader()
		if err != nil {
			return "", &appconfig.ConfigurationError{Field: "CATALOG_SOURCE", Reason: "aws config unavailable", Err: err}
		}
		objects = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
	}
	return catalog.Load(ctx, cfg.CatalogSource, objects)
}

func noopClose() error { return nil }

// NewLLMClient builds the completion adapter for LLM_PROVIDER.
func NewLLMClient(ctx context.Context, cfg *appconfig.Config, awsLoader AWSLoader) (conversation.LLMClient, func() error, error) {
	switch cfg.LLMProvider {
	case appconfig.ProviderGroq, appconfig.ProviderOpenAI:
		client, err := conversation.NewOpenAILLMClient(cfg.LLMAPIKey, cfg.LLMBaseURL)
		if err != nil {
			return nil, nil, &appconfig.ConfigurationError{Field: "LLM_API_KEY", Reason: "invalid provider settings", Err: err}
		}
		return client, noopClose, nil
	case appconfig.ProviderGemini:
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.LLMAPIKey)
		if err != nil {
			return nil, nil, &appconfig.ConfigurationError{Field: "LLM_API_KEY", Reason: "invalid provider settings", Err: err}
		}
		return client, client.Close, nil
	case appconfig.ProviderBedrock:
		awsCfg, err := awsLoader()
		if err != nil {
			return nil, nil, &appconfig.ConfigurationError{Field: "AWS_REGION", Reason: "aws config unavailable", Err: err}
		}
		return conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg)), noopClose, nil
	default:
		return nil, nil, &appconfig.ConfigurationError{Field: "LLM_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", cfg.LLMProvider)}
	}
}

// NewTraceSink builds the sink for TRACE_SINK. Missing Opik credentials are a
// configuration error.
func NewTraceSink(cfg *appconfig.Config, awsLoader AWSLoader, logger *logging.Logger) (tracing.Sink, error) {
	switch cfg.TraceSink {
	case appconfig.TraceSinkOpik:
		return NewOpikSink(cfg)
	case appconfig.TraceSinkSQS:
		awsCfg, err := awsLoader()
		if err != nil {
			return nil, &appconfig.ConfigurationError{Field: "TRACE_QUEUE_URL", Reason: "aws config unavailable", Err: err}
		}
		return tracing.NewQueueSink(tracing.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TraceQueueURL)), nil
	case appconfig.TraceSinkLog:
		return tracing.NewLogSink(logger), nil
	case appconfig.TraceSinkNone:
		return tracing.NopSink{}, nil
	default:
		return nil, &appconfig.ConfigurationError{Field: "TRACE_SINK", Reason: fmt.Sprintf("unsupported sink %q", cfg.TraceSink)}
	}
}

// NewOpikSink builds the Opik REST sink from the OPIK_* settings.
func NewOpikSink(cfg *appconfig.Config) (*tracing.OpikSink, error) {
	sink, err := tracing.NewOpikSink(tracing.OpikConfig{
		BaseURL:   cfg.OpikBaseURL,
		APIKey:    cfg.OpikAPIKey,
		Workspace: cfg.OpikWorkspace,
		Project:   cfg.OpikProject,
		Timeout:   cfg.TraceTimeout,
	})
	if err != nil {
		return nil, &appconfig.ConfigurationError{Field: "OPIK_API_KEY", Reason: "opik credentials", Err: err}
	}
	return sink, nil
}

// NewSessionStore builds the SESSION_STORE backend. The Redis store is pinged
// once so a bad address fails at startup.
func NewSessionStore(ctx context.Context, cfg *appconfig.Config, awsLoader AWSLoader) (conversation.SessionStore, func() error, error) {
	switch cfg.SessionStore {
	case appconfig.SessionStoreMemory, "":
		return conversation.NewMemorySessionStore(), noopClose, nil
	case appconfig.SessionStoreRedis:
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, &appconfig.ConfigurationError{Field: "REDIS_ADDR", Reason: "redis unreachable", Err: err}
		}
		return conversation.NewRedisSessionStore(client, cfg.SessionTTL, nil), client.Close, nil
	case appconfig.SessionStoreDynamo:
		awsCfg, err := awsLoader()
		if err != nil {
			return nil, nil, &appconfig.ConfigurationError{Field: "SESSION_TABLE", Reason: "aws config unavailable", Err: err}
		}
		return conversation.NewDynamoSessionStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionTTL), noopClose, nil
	default:
		return nil, nil, &appconfig.ConfigurationError{Field: "SESSION_STORE", Reason: fmt.Sprintf("unsupported store %q", cfg.SessionStore)}
	}
}
