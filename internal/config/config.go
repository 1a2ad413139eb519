package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Region is one independent partition of the room pool.
type Region struct {
	Name      string `yaml:"name"`
	RoomCount int    `yaml:"room_count"`
}

type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database (admin accounts and audit log only)
	DatabaseURL    string
	MigrateOnStart bool

	// Redis
	RedisURL string

	// Broadcast
	BroadcastBackend string // "redis" or "nats"
	NATSURL          string

	// Server
	Port           string
	FrontendURL    string
	TrustedProxies []string

	// Rooms
	Regions           []Region
	PresenceTTL       time.Duration
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	CountdownDuration time.Duration
	MatchedViewDelay  time.Duration
	CountdownTick     time.Duration
	KeepaliveInterval time.Duration
	JoinRatePerMinute int

	// Security
	JWTSecret       string
	AdminSessionTTL time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MigrateOnStart: getEnv("MIGRATE_ON_START", "false") == "true",

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Broadcast
		BroadcastBackend: getEnv("BROADCAST_BACKEND", "redis"),
		NATSURL:          getEnv("NATS_URL", ""),

		// Server
		Port:           getEnv("APP_PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", "http://localhost:5173"),
		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),

		// Rooms
		Regions:           regionsFromList(getEnv("REGIONS", "main"), getEnvInt("ROOM_COUNT", 30)),
		PresenceTTL:       getEnvSeconds("PRESENCE_TTL_SECONDS", 30),
		HeartbeatInterval: getEnvSeconds("HEARTBEAT_INTERVAL_SECONDS", 20),
		SweepInterval:     getEnvSeconds("SWEEP_INTERVAL_SECONDS", 15),
		CountdownDuration: getEnvSeconds("COUNTDOWN_SECONDS", 10),
		MatchedViewDelay:  getEnvSeconds("MATCHED_VIEW_SECONDS", 5),
		CountdownTick:     time.Second,
		KeepaliveInterval: getEnvSeconds("KEEPALIVE_SECONDS", 30),
		JoinRatePerMinute: getEnvInt("JOIN_RATE_PER_MINUTE", 30),

		// Security
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),
		AdminSessionTTL: time.Duration(getEnvInt("ADMIN_SESSION_MINUTES", 240)) * time.Minute,
	}

	if path := getEnv("REGIONS_FILE", ""); path != "" {
		regions, err := LoadRegionsFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: ignoring REGIONS_FILE %s: %v\n", path, err)
		} else {
			cfg.Regions = regions
		}
	}

	return cfg
}

// RegionNames returns the configured region names in declaration order.
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.Regions))
	for _, r := range c.Regions {
		names = append(names, r.Name)
	}
	return names
}

// LoadRegionsFile reads a YAML document of the form
//
//	regions:
//	  - name: cn
//	    room_count: 30
func LoadRegionsFile(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}

	var doc struct {
		Regions []Region `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse regions file: %w", err)
	}
	if len(doc.Regions) == 0 {
		return nil, fmt.Errorf("regions file declares no regions")
	}

	seen := make(map[string]bool, len(doc.Regions))
	for i, r := range doc.Regions {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("region %d has no name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate region %q", name)
		}
		seen[name] = true
		if r.RoomCount <= 0 {
			r.RoomCount = 30
		}
		doc.Regions[i] = Region{Name: name, RoomCount: r.RoomCount}
	}
	return doc.Regions, nil
}

func regionsFromList(list string, roomCount int) []Region {
	if roomCount <= 0 {
		roomCount = 30
	}
	var regions []Region
	for _, name := range splitList(list) {
		regions = append(regions, Region{Name: name, RoomCount: roomCount})
	}
	return regions
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
