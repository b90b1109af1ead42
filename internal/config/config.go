package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	GitHubToken       string
	GitHubAPIURL      string
	GitHubWebURL      string
	SearchPageSize    int
	SearchMaxAttempts int
	ReadmeRetryBudget time.Duration
	SearchWorkers     int
	FetchWorkers      int

	EmbeddingBaseURL  string
	EmbeddingLocalURL string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	EmbeddingCacheDir string

	KeywordExtractor string
	KeywordTopN      int

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	SemanticScholarURL    string
	SemanticScholarAPIKey string

	GrobidImage string
	GrobidPort  int

	SurrealURL  string
	SurrealNS   string
	SurrealDB   string
	SurrealUser string
	SurrealPass string

	Port string
}

const (
	ExtractorEmbedding = "embedding"
	ExtractorLLM       = "llm"
)

const defaultReadmeRetryBudget = 60 * time.Second

func defaults(v *viper.Viper) {
	v.SetDefault("github_api_url", "https://api.github.com")
	v.SetDefault("github_web_url", "https://github.com")
	v.SetDefault("search_page_size", 10)
	v.SetDefault("search_max_attempts", 5)
	v.SetDefault("readme_retry_budget", defaultReadmeRetryBudget.String())
	v.SetDefault("search_workers", 8)
	v.SetDefault("fetch_workers", 8)

	v.SetDefault("embedding_base_url", "http://localhost:8081/v1")
	v.SetDefault("embedding_model", "thenlper/gte-small")
	v.SetDefault("embedding_cache_dir", "./sentence-transformers_thenlper/gte-small")

	v.SetDefault("keyword_extractor", ExtractorEmbedding)
	v.SetDefault("keyword_top_n", 5)

	v.SetDefault("llm_base_url", "https://api.openai.com/v1")
	v.SetDefault("llm_model", "gpt-4o-mini")

	v.SetDefault("semantic_scholar_api_url", "https://api.semanticscholar.org")

	v.SetDefault("grobid_image", "lfoppiano/grobid:0.7.2")
	v.SetDefault("grobid_port", 8070)

	v.SetDefault("port", "8080")
}

// Load reads .env, then an optional pwoc.yaml (working directory or
// ~/.config/pwoc), then the environment. Environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)

	v.SetConfigName("pwoc")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "pwoc"))
	}
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		GitHubToken:       v.GetString("github_token"),
		GitHubAPIURL:      v.GetString("github_api_url"),
		GitHubWebURL:      v.GetString("github_web_url"),
		SearchPageSize:    v.GetInt("search_page_size"),
		SearchMaxAttempts: v.GetInt("search_max_attempts"),
		ReadmeRetryBudget: seconds(v.GetString("readme_retry_budget"), defaultReadmeRetryBudget),
		SearchWorkers:     v.GetInt("search_workers"),
		FetchWorkers:      v.GetInt("fetch_workers"),

		EmbeddingBaseURL:  v.GetString("embedding_base_url"),
		EmbeddingLocalURL: v.GetString("embedding_local_base_url"),
		EmbeddingAPIKey:   v.GetString("embedding_api_key"),
		EmbeddingModel:    v.GetString("embedding_model"),
		EmbeddingCacheDir: v.GetString("embedding_cache_dir"),

		KeywordExtractor: strings.ToLower(v.GetString("keyword_extractor")),
		KeywordTopN:      v.GetInt("keyword_top_n"),

		LLMBaseURL: v.GetString("llm_base_url"),
		LLMAPIKey:  v.GetString("llm_api_key"),
		LLMModel:   v.GetString("llm_model"),

		SemanticScholarURL:    v.GetString("semantic_scholar_api_url"),
		SemanticScholarAPIKey: v.GetString("semantic_scholar_api_key"),

		GrobidImage: v.GetString("grobid_image"),
		GrobidPort:  v.GetInt("grobid_port"),

		SurrealURL:  v.GetString("surreal_url"),
		SurrealNS:   v.GetString("surreal_ns"),
		SurrealDB:   v.GetString("surreal_db"),
		SurrealUser: v.GetString("surreal_user"),
		SurrealPass: v.GetString("surreal_pass"),

		Port: v.GetString("port"),
	}

	// The SDK appends /rpc automatically
	cfg.SurrealURL = strings.TrimSuffix(cfg.SurrealURL, "/rpc")
	cfg.SurrealURL = strings.TrimSuffix(cfg.SurrealURL, "/")

	cfg.GitHubAPIURL = strings.TrimSuffix(cfg.GitHubAPIURL, "/")
	cfg.GitHubWebURL = strings.TrimSuffix(cfg.GitHubWebURL, "/")
	cfg.SemanticScholarURL = strings.TrimSuffix(cfg.SemanticScholarURL, "/")

	if cfg.KeywordExtractor != ExtractorLLM {
		cfg.KeywordExtractor = ExtractorEmbedding
	}
	if cfg.SearchWorkers < 1 {
		cfg.SearchWorkers = 1
	}
	if cfg.FetchWorkers < 1 {
		cfg.FetchWorkers = 1
	}

	return cfg
}

// seconds parses a duration that may be written without a unit, in which
// case it counts seconds. Anything unparseable or negative yields def.
func seconds(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if n < 0 {
			return def
		}
		return time.Duration(n * float64(time.Second))
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
