package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TOOL_FINDER"

// Override keys. Environment variables are EnvPrefix + "_" + the upper-cased
// key with dots replaced by underscores, e.g. TOOL_FINDER_EMBEDDING_BASE_URL.
const (
	KeyDatabasePath         = "database_path"
	KeyTopK                 = "top_k"
	KeyMinSimilarity        = "min_similarity"
	KeyDuplicateThreshold   = "duplicate_threshold"
	KeyCandidateFloor       = "candidate_floor"
	KeyCandidateLimit       = "candidate_limit"
	KeyIndexWorkers         = "index_workers"
	KeySessionIDLength      = "session_id_length"
	KeyProcessPoolSize      = "process_pool_size"
	KeyTimeoutSeconds       = "timeout_seconds"
	KeyHistoryRetentionDays = "history_retention_days"
	KeyEmbeddingBackend     = "embedding.backend"
	KeyEmbeddingBaseURL     = "embedding.base_url"
	KeyEmbeddingModel       = "embedding.model"
	KeyEmbeddingDimension   = "embedding.dimension"
	KeyEmbeddingAPIKeyEnv   = "embedding.api_key_env"
)

// NewViper returns a viper instance reading TOOL_FINDER_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (environment or bound flag) onto s.
func ApplyOverrides(s *Settings, v *viper.Viper) {
	if s.Embedding == nil {
		s.Embedding = &EmbeddingSettings{}
	}

	overrideString(v, KeyDatabasePath, &s.DatabasePath)
	overrideInt(v, KeyTopK, &s.TopK)
	overrideFloat(v, KeyMinSimilarity, &s.MinSimilarity)
	overrideFloat(v, KeyDuplicateThreshold, &s.DuplicateThreshold)
	overrideFloat(v, KeyCandidateFloor, &s.CandidateFloor)
	overrideInt(v, KeyCandidateLimit, &s.CandidateLimit)
	overrideInt(v, KeyIndexWorkers, &s.IndexWorkers)
	overrideInt(v, KeySessionIDLength, &s.SessionIDLength)
	overrideInt(v, KeyProcessPoolSize, &s.ProcessPoolSize)
	overrideInt(v, KeyTimeoutSeconds, &s.TimeoutSeconds)
	overrideInt(v, KeyHistoryRetentionDays, &s.HistoryRetentionDays)
	overrideString(v, KeyEmbeddingBackend, &s.Embedding.Backend)
	overrideString(v, KeyEmbeddingBaseURL, &s.Embedding.BaseURL)
	overrideString(v, KeyEmbeddingModel, &s.Embedding.Model)
	overrideInt(v, KeyEmbeddingDimension, &s.Embedding.Dimension)
	overrideString(v, KeyEmbeddingAPIKeyEnv, &s.Embedding.APIKeyEnv)
}

func overrideString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}

func overrideInt(v *viper.Viper, key string, dst *int) {
	if v.IsSet(key) {
		*dst = v.GetInt(key)
	}
}

func overrideFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

// APIKey resolves the embedding API key from the configured variable.
func (e *EmbeddingSettings) APIKey() string {
	if e == nil || e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}
