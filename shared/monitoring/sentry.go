package monitoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const filtered = "[FILTERED]"

var sensitiveKeys = []string{
	"password", "passwd", "secret", "token",
	"authorization", "cookie", "api_key", "apikey",
	"private_key", "privatekey", "keystore", "mnemonic",
}

// SentryConfig holds Sentry configuration options
type SentryConfig struct {
	DSN              string
	Environment      string
	Release          string
	Debug            bool
	SampleRate       float64
	TracesSampleRate float64
	ServiceName      string
}

// InitSentry initializes Sentry. It reports whether a client was configured;
// an empty DSN disables reporting without error.
func InitSentry(config *SentryConfig) (bool, error) {
	if config == nil || config.DSN == "" {
		return false, nil
	}

	environment := config.Environment
	if environment == "" {
		environment = "development"
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              config.DSN,
		Environment:      environment,
		Release:          config.Release,
		Debug:            config.Debug,
		SampleRate:       sampleRate,
		TracesSampleRate: config.TracesSampleRate,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			if config.ServiceName != "" {
				if event.Tags == nil {
					event.Tags = map[string]string{}
				}
				event.Tags["service"] = config.ServiceName
			}
			FilterSensitiveData(event)
			return event
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return true, nil
}

// FilterSensitiveData removes secrets from request headers, contexts and extras
func FilterSensitiveData(event *sentry.Event) {
	if event == nil {
		return
	}
	if event.Request != nil {
		for key := range event.Request.Headers {
			if isSensitiveKey(key) {
				event.Request.Headers[key] = filtered
			}
		}
		if event.Request.Data != "" {
			event.Request.Data = filtered
		}
	}
	for _, contextValue := range event.Contexts {
		for key := range contextValue {
			if isSensitiveKey(key) {
				contextValue[key] = filtered
			}
		}
	}
	for key := range event.Extra {
		if isSensitiveKey(key) {
			event.Extra[key] = filtered
		}
	}
}

func isSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitive) {
			return true
		}
	}
	return false
}

// FlushSentry flushes buffered events
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureError captures an error and sends it to Sentry
func CaptureError(err error, tags map[string]string, extra map[string]interface{}) {
	hub := sentry.CurrentHub()
	hub.WithScope(func(scope *sentry.Scope) {
		for key, value := range tags {
			scope.SetTag(key, value)
		}
		for key, value := range extra {
			scope.SetExtra(key, value)
		}
		hub.CaptureException(err)
	})
}
