package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, built once in main.
type Config struct {
	Server    Server
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	WorldID   WorldIDConfig
	Self      SelfConfig
	Session   SessionConfig
	Chain     ChainConfig
	Mint      MintConfig
	Media     MediaConfig
	Humanity  FlowConfig
	Identity  FlowConfig
	RateLimit RateLimitConfig
	LogLevel  string
	Env       string
	StoreKind string // memory, postgres or redis
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	MaxBodyBytes    int64
	TrustProxy      bool
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the Postgres connection settings. An empty URL disables Postgres.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
}

// KafkaConfig holds event publishing settings. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers         string
	Topic           string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// WorldIDConfig configures the humanity proof collaborator.
type WorldIDConfig struct {
	AppID   string
	Action  string
	BaseURL string
	Timeout time.Duration
}

// SelfConfig configures the identity-attribute proof collaborator.
type SelfConfig struct {
	Scope       string
	CallbackURL string
	VerifierURL string
	UserIDType  string // hex or uuid
	DevMode     bool
	RequireRoot bool
	Timeout     time.Duration
}

// SessionConfig configures SIWE nonces and wallet session cookies.
type SessionConfig struct {
	SigningKey   string
	TTL          time.Duration
	NonceTTL     time.Duration
	Domain       string
	SecureCookie bool
}

// ChainConfig configures the EVM connection and transaction sender.
type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	PrivateKey      string
	RegistryAddress string
	GasLimit        uint64
}

// MintConfig bounds the mint orchestrator.
type MintConfig struct {
	ConfirmTimeout time.Duration
	SubmitTimeout  time.Duration
}

// MediaConfig configures the embedding service proxy.
type MediaConfig struct {
	StegoURL        string
	EmbedPayload    string
	Timeout         time.Duration
	ArtifactTTL     time.Duration
	MaxUploadBytes  int64
	PublicBaseURL   string
	BreakerFailures int
	BreakerCooldown time.Duration
}

// RateLimitConfig holds request budgets per endpoint class. Zero disables a
// class; Enabled false disables all of them.
type RateLimitConfig struct {
	Enabled       bool
	ProofPerMin   int
	SessionPerMin int
	MintPerMin    int
	MediaPer10Min int
}

// FlowConfig bounds the two external waits of a proof flow.
type FlowConfig struct {
	ProofTimeout  time.Duration
	VerifyTimeout time.Duration
}

// WorldIDAction is the action identifier humanity proofs are bound to.
const WorldIDAction = "proof-of-humanity"

// DefaultEmbedPayload is the payload string embedded into recorded video.
const DefaultEmbedPayload = "abcdefghijklmnopqrstuvwxyz"

// DefaultConfig returns a development configuration: in-memory store, no
// external infrastructure, relaxed cookies.
func DefaultConfig() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			RequestTimeout:  60 * time.Second,
			MaxBodyBytes:    1 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			KeyPrefix:    "deepname:",
		},
		Kafka: KafkaConfig{
			Topic:           "deepname.events",
			Acks:            "all",
			Retries:         3,
			DeliveryTimeout: 30 * time.Second,
		},
		WorldID: WorldIDConfig{
			Action:  WorldIDAction,
			BaseURL: "https://developer.worldcoin.org",
			Timeout: 15 * time.Second,
		},
		Self: SelfConfig{
			Scope:      "Deep Name Minting",
			UserIDType: "hex",
			DevMode:    true,
			Timeout:    30 * time.Second,
		},
		Session: SessionConfig{
			SigningKey: "dev-secret-key-change-in-production",
			TTL:        24 * time.Hour,
			NonceTTL:   10 * time.Minute,
		},
		Chain: ChainConfig{
			GasLimit: 1_500_000,
		},
		Mint: MintConfig{
			ConfirmTimeout: 3 * time.Minute,
			SubmitTimeout:  30 * time.Second,
		},
		Media: MediaConfig{
			EmbedPayload:    DefaultEmbedPayload,
			Timeout:         2 * time.Minute,
			ArtifactTTL:     time.Hour,
			MaxUploadBytes:  200 << 20,
			BreakerFailures: 3,
			BreakerCooldown: 30 * time.Second,
		},
		Humanity: FlowConfig{ProofTimeout: 2 * time.Minute, VerifyTimeout: 20 * time.Second},
		Identity: FlowConfig{ProofTimeout: 5 * time.Minute, VerifyTimeout: 30 * time.Second},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			ProofPerMin:   10,
			SessionPerMin: 30,
			MintPerMin:    5,
			MediaPer10Min: 5,
		},
		LogLevel:  "info",
		Env:       "dev",
		StoreKind: "memory",
	}
}

// FromEnv builds a Config from environment variables on top of DefaultConfig.
// Malformed values are reported together; missing required values are left
// for Validate so main can decide which features are disabled.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	e := &envReader{}

	cfg.Server.Addr = e.str("DEEPNAME_ADDR", cfg.Server.Addr)
	cfg.Server.RequestTimeout = e.duration("REQUEST_TIMEOUT", cfg.Server.RequestTimeout)
	cfg.Server.MaxBodyBytes = e.int64("MAX_BODY_BYTES", cfg.Server.MaxBodyBytes)
	cfg.Server.TrustProxy = e.boolean("TRUST_PROXY", cfg.Server.TrustProxy)
	cfg.Env = e.str("APP_ENV", cfg.Env)
	cfg.LogLevel = e.str("LOG_LEVEL", cfg.LogLevel)
	cfg.StoreKind = strings.ToLower(e.str("VERIFICATION_STORE", cfg.StoreKind))

	cfg.Database.URL = e.str("DATABASE_URL", "")
	cfg.Database.MaxOpenConns = e.integer("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)

	cfg.Redis.URL = e.str("REDIS_URL", "")
	cfg.Redis.PoolSize = e.integer("REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	cfg.Kafka.Brokers = e.str("KAFKA_BROKERS", "")
	cfg.Kafka.Topic = e.str("KAFKA_TOPIC", cfg.Kafka.Topic)

	// Variable names follow the original deployment's .env.
	cfg.WorldID.AppID = e.str("NEXTAUTH_WORLDCOIN_ID", e.str("WORLDID_APP_ID", ""))
	cfg.WorldID.Action = e.str("WORLDID_ACTION", cfg.WorldID.Action)
	cfg.WorldID.BaseURL = e.str("WORLDID_API_URL", cfg.WorldID.BaseURL)

	cfg.Self.CallbackURL = e.str("SELF_CALLBACK_URL", "")
	cfg.Self.VerifierURL = e.str("SELF_VERIFIER_URL", "")
	cfg.Self.Scope = e.str("SELF_SCOPE", cfg.Self.Scope)
	cfg.Self.UserIDType = e.str("SELF_USER_ID_TYPE", cfg.Self.UserIDType)
	cfg.Self.DevMode = e.boolean("SELF_DEV_MODE", cfg.Self.DevMode)
	cfg.Self.RequireRoot = e.boolean("IDENTITY_REQUIRE_ROOT", cfg.Self.RequireRoot)

	cfg.Session.SigningKey = e.str("JWT_SIGNING_KEY", cfg.Session.SigningKey)
	cfg.Session.TTL = e.duration("SESSION_TTL", cfg.Session.TTL)
	cfg.Session.NonceTTL = e.duration("SIWE_NONCE_TTL", cfg.Session.NonceTTL)
	cfg.Session.Domain = e.str("SIWE_DOMAIN", "")
	cfg.Session.SecureCookie = e.boolean("SECURE_COOKIES", cfg.Env != "dev")

	cfg.Chain.RPCURL = e.str("CHAIN_RPC_URL", "")
	cfg.Chain.ChainID = e.int64("CHAIN_ID", 0)
	cfg.Chain.PrivateKey = e.str("PRIVATE_KEY", "")
	cfg.Chain.RegistryAddress = e.str("REGISTRY_ADDRESS", "")
	cfg.Chain.GasLimit = uint64(e.int64("CHAIN_GAS_LIMIT", int64(cfg.Chain.GasLimit)))

	cfg.Mint.ConfirmTimeout = e.duration("MINT_CONFIRM_TIMEOUT", cfg.Mint.ConfirmTimeout)
	cfg.Mint.SubmitTimeout = e.duration("MINT_SUBMIT_TIMEOUT", cfg.Mint.SubmitTimeout)

	cfg.Media.StegoURL = e.str("SERVER_URL", e.str("STEGO_URL", ""))
	cfg.Media.EmbedPayload = e.str("MEDIA_EMBED_PAYLOAD", cfg.Media.EmbedPayload)
	cfg.Media.Timeout = e.duration("MEDIA_TIMEOUT", cfg.Media.Timeout)
	cfg.Media.ArtifactTTL = e.duration("MEDIA_ARTIFACT_TTL", cfg.Media.ArtifactTTL)
	cfg.Media.MaxUploadBytes = e.int64("MEDIA_MAX_UPLOAD_BYTES", cfg.Media.MaxUploadBytes)
	cfg.Media.PublicBaseURL = e.str("PUBLIC_BASE_URL", "")

	cfg.Humanity.ProofTimeout = e.duration("HUMANITY_PROOF_TIMEOUT", cfg.Humanity.ProofTimeout)
	cfg.Humanity.VerifyTimeout = e.duration("HUMANITY_VERIFY_TIMEOUT", cfg.Humanity.VerifyTimeout)
	cfg.Identity.ProofTimeout = e.duration("IDENTITY_PROOF_TIMEOUT", cfg.Identity.ProofTimeout)
	cfg.Identity.VerifyTimeout = e.duration("IDENTITY_VERIFY_TIMEOUT", cfg.Identity.VerifyTimeout)

	cfg.RateLimit.Enabled = e.boolean("RATE_LIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.ProofPerMin = e.integer("RATE_LIMIT_PROOF_PER_MIN", cfg.RateLimit.ProofPerMin)
	cfg.RateLimit.SessionPerMin = e.integer("RATE_LIMIT_SESSION_PER_MIN", cfg.RateLimit.SessionPerMin)
	cfg.RateLimit.MintPerMin = e.integer("RATE_LIMIT_MINT_PER_MIN", cfg.RateLimit.MintPerMin)
	cfg.RateLimit.MediaPer10Min = e.integer("RATE_LIMIT_MEDIA_PER_10MIN", cfg.RateLimit.MediaPer10Min)

	if len(e.errs) > 0 {
		return cfg, errors.Join(e.errs...)
	}
	return cfg, nil
}

// Validate reports every configuration value the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreKind {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when VERIFICATION_STORE=postgres"))
		}
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when VERIFICATION_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown VERIFICATION_STORE %q", c.StoreKind))
	}
	if c.Self.UserIDType != "hex" && c.Self.UserIDType != "uuid" {
		errs = append(errs, fmt.Errorf("SELF_USER_ID_TYPE must be hex or uuid, got %q", c.Self.UserIDType))
	}
	if c.Env != "dev" && c.Session.SigningKey == DefaultConfig().Session.SigningKey {
		errs = append(errs, errors.New("JWT_SIGNING_KEY must be set outside dev"))
	}
	return errors.Join(errs...)
}

// MissingChain names the chain settings that are unset. The mint flow reports
// these as a configuration failure instead of refusing to start the server.
func (c ChainConfig) MissingChain() []string {
	var missing []string
	if c.RPCURL == "" {
		missing = append(missing, "CHAIN_RPC_URL")
	}
	if c.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if c.RegistryAddress == "" {
		missing = append(missing, "REGISTRY_ADDRESS")
	}
	return missing
}

type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) integer(key string, def int) int {
	return int(e.int64(key, int64(def)))
}

func (e *envReader) int64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}
