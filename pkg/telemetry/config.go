package telemetry

import (
	"os"
	"strings"
)

// Config holds the tracing configuration. The CLI fills it from its own
// flags and config file; LoadFromEnv offers the standard OTEL_* variables
// as a fallback for callers that embed the pipeline elsewhere.
type Config struct {
	// Enabled gates the whole package. When false no exporter is built
	// and the global provider stays the no-op default.
	Enabled bool

	// ServiceName and ServiceVersion become resource attributes.
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP collector endpoint, with or without scheme.
	Endpoint string

	// Protocol selects the exporter transport: "grpc" or "http/protobuf".
	Protocol string

	// Headers are sent with every export request (e.g. Authorization).
	Headers map[string]string

	// Insecure disables TLS on the exporter connection.
	Insecure bool

	// Sampler names the trace sampler: always_on, always_off,
	// traceidratio, or a parentbased_ variant. SamplerArg carries the
	// ratio where one applies.
	Sampler    string
	SamplerArg string

	// ResourceAttrs are merged into the resource as-is.
	ResourceAttrs map[string]string
}

// LoadFromEnv builds a Config from the standard OTEL_* environment
// variables.
func LoadFromEnv() *Config {
	return &Config{
		Enabled:        strings.ToLower(os.Getenv("OTEL_ENABLED")) == "true",
		ServiceName:    getEnvOrDefault("OTEL_SERVICE_NAME", "heapdom-retain"),
		ServiceVersion: getEnvOrDefault("OTEL_SERVICE_VERSION", "unknown"),
		Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Protocol:       getEnvOrDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
		Headers:        parseKeyValuePairs(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Insecure:       strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")) == "true",
		Sampler:        os.Getenv("OTEL_TRACES_SAMPLER"),
		SamplerArg:     os.Getenv("OTEL_TRACES_SAMPLER_ARG"),
		ResourceAttrs:  parseKeyValuePairs(os.Getenv("OTEL_RESOURCE_ATTRIBUTES")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseKeyValuePairs parses "k1=v1,k2=v2" into a map, splitting each pair
// on the first '=' so values may themselves contain one.
func parseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	if s == "" {
		return result
	}

	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		value := strings.TrimSpace(pair[idx+1:])
		if key != "" {
			result[key] = value
		}
	}

	return result
}
