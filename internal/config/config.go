package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys shared by the command line flags, ECHOES_* environment variables
// and viper lookups.
const (
	AddrFlag                  = "addr"
	StoreFlag                 = "store"
	DSNFlag                   = "dsn"
	MongoURIFlag              = "mongo-uri"
	MongoDatabaseFlag         = "mongo-database"
	RedisAddrFlag             = "redis-addr"
	SigningKeyFlag            = "signing-key"
	AllowedOriginsFlag        = "allowed-origins"
	LogLevelFlag              = "log-level"
	DevFlag                   = "dev"
	AuthRPSFlag               = "auth-rps"
	AuthBurstFlag             = "auth-burst"
	RotationCheckIntervalFlag = "rotation-check-interval"
	RotationPeriodFlag        = "rotation-period"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

type Config struct {
	ServerAddr            string
	Store                 string
	DatabaseDSN           string
	MongoURI              string
	MongoDatabase         string
	RedisAddr             string
	SigningKey            []byte
	AllowedOrigins        []string
	LogLevel              string
	Dev                   bool
	AuthRPS               float64
	AuthBurst             int
	RotationCheckInterval time.Duration
	RotationPeriod        time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}

	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		Store:          StorePostgres,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
		LogLevel:       "info",
		AuthRPS:        1,
		AuthBurst:      5,
	}, nil
}

// Load builds a Config from flags and environment variables already bound
// into v.
func Load(v *viper.Viper) (*Config, error) {
	store := strings.ToLower(v.GetString(StoreFlag))

	dsn := v.GetString(DSNFlag)
	switch store {
	case StoreMongo:
		dsn = v.GetString(MongoURIFlag)
	case StoreMemory:
		dsn = StoreMemory
	}

	cfg, err := NewConfig(
		v.GetString(AddrFlag),
		dsn,
		v.GetString(SigningKeyFlag),
		splitOrigins(v.GetStringSlice(AllowedOriginsFlag)),
	)
	if err != nil {
		return nil, err
	}

	switch store {
	case StorePostgres:
	case StoreMongo:
		cfg.DatabaseDSN = ""
		cfg.MongoURI = dsn
		cfg.MongoDatabase = v.GetString(MongoDatabaseFlag)
	case StoreMemory:
		cfg.DatabaseDSN = ""
	default:
		return nil, fmt.Errorf("unknown store %q", store)
	}
	cfg.Store = store

	cfg.RedisAddr = v.GetString(RedisAddrFlag)
	cfg.LogLevel = v.GetString(LogLevelFlag)
	cfg.Dev = v.GetBool(DevFlag)

	cfg.AuthRPS = v.GetFloat64(AuthRPSFlag)
	cfg.AuthBurst = v.GetInt(AuthBurstFlag)
	if cfg.AuthRPS <= 0 || cfg.AuthBurst <= 0 {
		return nil, fmt.Errorf("auth rate limit must be positive")
	}

	cfg.RotationCheckInterval = v.GetDuration(RotationCheckIntervalFlag)
	cfg.RotationPeriod = v.GetDuration(RotationPeriodFlag)
	if cfg.RotationCheckInterval < 0 {
		return nil, fmt.Errorf("rotation check interval cannot be negative")
	}
	if cfg.RotationCheckInterval > 0 && cfg.RotationPeriod <= 0 {
		return nil, fmt.Errorf("rotation period must be positive")
	}

	return cfg, nil
}

// splitOrigins accepts both repeated values and comma separated lists, the
// latter being the only form available from the environment.
func splitOrigins(values []string) []string {
	var origins []string
	for _, v := range values {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return origins
}
