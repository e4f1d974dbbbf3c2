package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider       = "ai_provider"
	FieldModel          = "ai_model"
	FieldEmbeddingModel = "embedding_model"
	FieldIndexBackend   = "index_backend"
	FieldIndexLocation  = "index_location"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields, trimming whitespace
// and omitting entries with an empty key or value.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// AIFields describes the language model and embedding model in use.
func AIFields(provider, model, embeddingModel string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
		StringField{Key: FieldEmbeddingModel, Value: embeddingModel},
	)
}

// IndexFields describes the vector index a command works against.
func IndexFields(backend, location string) []zap.Field {
	return StringFields(
		StringField{Key: FieldIndexBackend, Value: backend},
		StringField{Key: FieldIndexLocation, Value: location},
	)
}
