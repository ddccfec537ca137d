package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "UPLINK_"

// ServerConfig holds configuration for uplinkd.
type ServerConfig struct {
	Addr          string        `koanf:"addr"`
	Root          string        `koanf:"root"`
	LogLevel      string        `koanf:"log_level"`
	LogFormat     string        `koanf:"log_format"`
	ChunkSize     int           `koanf:"chunk_size"`
	SocketBuf     int           `koanf:"socket_buf"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	HeaderTimeout time.Duration `koanf:"header_timeout"`
	MaxConns      int           `koanf:"max_conns"`
	AcceptsPerMin int           `koanf:"accepts_per_min"`
	AcceptBurst   int           `koanf:"accept_burst"`
	QUICAddr      string        `koanf:"quic_addr"`
	WSAddr        string        `koanf:"ws_addr"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	RedisKey      string        `koanf:"redis_key"`
}

// ClientConfig holds configuration for the uplink client.
type ClientConfig struct {
	Server        string        `koanf:"server"`
	ClientName    string        `koanf:"client_name"`
	Transport     string        `koanf:"transport"` // tcp, quic or ws
	UploadID      string        `koanf:"upload_id"` // default: derived from file identity
	LogLevel      string        `koanf:"log_level"`
	ChunkSize     int           `koanf:"chunk_size"`
	Retries       int           `koanf:"retries"`
	RetryDelay    time.Duration `koanf:"retry_delay"`
	MaxRetryDelay time.Duration `koanf:"max_retry_delay"`
	DialTimeout   time.Duration `koanf:"dial_timeout"`
	IOTimeout     time.Duration `koanf:"io_timeout"`
	Paths         []string      `koanf:"-"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:          ":8888",
		Root:          "received",
		LogLevel:      "info",
		LogFormat:     "text",
		ChunkSize:     4 * 1024 * 1024,
		SocketBuf:     8 * 1024 * 1024,
		IdleTimeout:   60 * time.Second,
		HeaderTimeout: 30 * time.Second,
		MaxConns:      1000,
		AcceptBurst:   10,
		RedisKey:      "uplink:completed",
	}
}

// DefaultClientConfig returns the built-in client defaults.
func DefaultClientConfig() ClientConfig {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "station"
	}
	return ClientConfig{
		Server:        "127.0.0.1:8888",
		ClientName:    host,
		Transport:     "tcp",
		LogLevel:      "info",
		ChunkSize:     1024 * 1024,
		Retries:       10,
		RetryDelay:    time.Second,
		MaxRetryDelay: 30 * time.Second,
		DialTimeout:   10 * time.Second,
		IOTimeout:     60 * time.Second,
	}
}

// ParseServerConfig builds the server configuration. Precedence, lowest
// first: defaults, YAML file (-config or UPLINK_CONFIG), .env file,
// UPLINK_* environment variables, flags.
func ParseServerConfig() (ServerConfig, error) {
	return parseServerConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseServerConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseServerConfigWithFlagSet(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	configPath := findConfigPath(args)
	if err := loadFile(configPath, &cfg); err != nil {
		return cfg, err
	}
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}

	var env envReader
	env.String("ADDR", &cfg.Addr)
	env.String("ROOT", &cfg.Root)
	env.String("LOG_LEVEL", &cfg.LogLevel)
	env.String("LOG_FORMAT", &cfg.LogFormat)
	env.Int("CHUNK_SIZE", &cfg.ChunkSize)
	env.Int("SOCKET_BUF", &cfg.SocketBuf)
	env.Duration("IDLE_TIMEOUT", &cfg.IdleTimeout)
	env.Duration("HEADER_TIMEOUT", &cfg.HeaderTimeout)
	env.Int("MAX_CONNS", &cfg.MaxConns)
	env.Int("ACCEPTS_PER_MIN", &cfg.AcceptsPerMin)
	env.Int("ACCEPT_BURST", &cfg.AcceptBurst)
	env.String("QUIC_ADDR", &cfg.QUICAddr)
	env.String("WS_ADDR", &cfg.WSAddr)
	env.String("REDIS_ADDR", &cfg.RedisAddr)
	env.String("REDIS_PASSWORD", &cfg.RedisPassword)
	env.Int("REDIS_DB", &cfg.RedisDB)
	env.String("REDIS_KEY", &cfg.RedisKey)
	if err := env.Err(); err != nil {
		return cfg, err
	}

	// Flags override environment
	fs.String("config", configPath, "YAML config file")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "TCP listen address")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "directory receiving uploads")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "receive chunk size in bytes")
	fs.IntVar(&cfg.SocketBuf, "socket-buf", cfg.SocketBuf, "socket send/receive buffer in bytes")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "max silence while receiving a body")
	fs.DurationVar(&cfg.HeaderTimeout, "header-timeout", cfg.HeaderTimeout, "max time to receive the request header")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "max concurrent connections (0 = unlimited)")
	fs.IntVar(&cfg.AcceptsPerMin, "accepts-per-min", cfg.AcceptsPerMin, "max new connections per minute per IP (0 = unlimited)")
	fs.IntVar(&cfg.AcceptBurst, "accept-burst", cfg.AcceptBurst, "burst of new connections per IP")
	fs.StringVar(&cfg.QUICAddr, "quic-addr", cfg.QUICAddr, "optional QUIC listen address")
	fs.StringVar(&cfg.WSAddr, "ws-addr", cfg.WSAddr, "optional WebSocket listen address")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "optional Redis address for the completion feed")
	fs.StringVar(&cfg.RedisPassword, "redis-password", cfg.RedisPassword, "Redis password")
	fs.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database")
	fs.StringVar(&cfg.RedisKey, "redis-key", cfg.RedisKey, "Redis list receiving completion events")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot run with.
func (c ServerConfig) Validate() error {
	if c.Root == "" {
		return errors.New("root directory is required")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be > 0, got %d", c.ChunkSize)
	}
	if c.IdleTimeout < 0 || c.HeaderTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// ParseClientConfig builds the client configuration with the same precedence
// as ParseServerConfig. Remaining arguments are the files to upload.
func ParseClientConfig() (ClientConfig, error) {
	return parseClientConfigWithFlagSet(flag.CommandLine, os.Args[1:])
}

// parseClientConfigWithFlagSet is an internal helper for testing with isolated flag sets.
func parseClientConfigWithFlagSet(fs *flag.FlagSet, args []string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	configPath := findConfigPath(args)
	if err := loadFile(configPath, &cfg); err != nil {
		return cfg, err
	}
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}

	var env envReader
	env.String("SERVER", &cfg.Server)
	env.String("CLIENT_NAME", &cfg.ClientName)
	env.String("TRANSPORT", &cfg.Transport)
	env.String("UPLOAD_ID", &cfg.UploadID)
	env.String("LOG_LEVEL", &cfg.LogLevel)
	env.Int("CHUNK_SIZE", &cfg.ChunkSize)
	env.Int("RETRIES", &cfg.Retries)
	env.Duration("RETRY_DELAY", &cfg.RetryDelay)
	env.Duration("MAX_RETRY_DELAY", &cfg.MaxRetryDelay)
	env.Duration("DIAL_TIMEOUT", &cfg.DialTimeout)
	env.Duration("IO_TIMEOUT", &cfg.IOTimeout)
	if err := env.Err(); err != nil {
		return cfg, err
	}

	fs.String("config", configPath, "YAML config file")
	fs.StringVar(&cfg.Server, "server", cfg.Server, "server address (host:port, or ws:// URL)")
	fs.StringVar(&cfg.ClientName, "client", cfg.ClientName, "client (station) name")
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport (tcp, quic, ws)")
	fs.StringVar(&cfg.UploadID, "upload-id", cfg.UploadID, "upload id (single file only)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "send chunk size in bytes")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "max attempts per file")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "initial backoff between attempts")
	fs.DurationVar(&cfg.MaxRetryDelay, "max-retry-delay", cfg.MaxRetryDelay, "backoff ceiling")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "connect timeout")
	fs.DurationVar(&cfg.IOTimeout, "io-timeout", cfg.IOTimeout, "max silence from the server")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	cfg.Paths = fs.Args()

	switch cfg.Transport {
	case "tcp", "quic", "ws":
	default:
		return cfg, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if cfg.ClientName == "" {
		return cfg, errors.New("client name is required")
	}
	if cfg.UploadID != "" && len(cfg.Paths) > 1 {
		return cfg, errors.New("-upload-id applies to a single file")
	}
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	return cfg, nil
}

// findConfigPath scans args for -config before flags are parsed so the file
// can supply flag defaults.
func findConfigPath(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv(envPrefix + "CONFIG")
}

func loadFile(path string, out any) error {
	if path == "" {
		return nil
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

// loadDotEnv imports .env from the working directory without overriding
// variables already set.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// envReader applies UPLINK_* variables and collects malformed values.
type envReader struct {
	errs []error
}

func (e *envReader) String(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func (e *envReader) Int(key string, dst *int) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid integer %q", envPrefix, key, v))
		return
	}
	*dst = n
}

func (e *envReader) Duration(key string, dst *time.Duration) {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s%s: invalid duration %q", envPrefix, key, v))
		return
	}
	*dst = d
}

// Err reports every malformed variable seen so far.
func (e *envReader) Err() error {
	return errors.Join(e.errs...)
}
