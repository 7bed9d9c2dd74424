package config

import (
	"flag"
	"io"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the taskgrab service
type Config struct {
	Port           int           `json:"port"`
	DefaultTTL     time.Duration `json:"default_ttl"`
	StorageBackend string        `json:"storage_backend"`
	DataDir        string        `json:"data_dir"`
	MongoURL       string        `json:"mongo_url"`
	MongoDB        string        `json:"mongo_db"`
	DynamoTable    string        `json:"dynamo_table"`
	DynamoRegion   string        `json:"dynamo_region"`
	RedisAddr      string        `json:"redis_addr"`
	OfficialFile   string        `json:"official_file"`
	Version        string        `json:"version"`
	BuildTime      string        `json:"build_time"`
	CommitHash     string        `json:"commit_hash"`
}

// LoadConfig loads configuration from CLI flags and environment variables.
// Environment variables (TASKGRAB_*) take precedence over flags.
func LoadConfig() *Config {
	config := &Config{
		Port:           8080,
		DefaultTTL:     300 * time.Second,
		StorageBackend: "filesystem",
		DataDir:        "./data",
		MongoURL:       "mongodb://localhost:27017",
		MongoDB:        "taskgrab",
		DynamoTable:    "taskgrab-listings",
		DynamoRegion:   "us-east-1",
		RedisAddr:      "localhost:6379",
		OfficialFile:   "",
	}

	// Parse CLI flags on a private FlagSet so LoadConfig stays callable
	// more than once (tests).
	fs := flag.NewFlagSet("taskgrab", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&config.Port, "port", config.Port, "Port to listen on")
	fs.DurationVar(&config.DefaultTTL, "ttl", config.DefaultTTL, "Default listing time-to-live")
	fs.StringVar(&config.StorageBackend, "storage", config.StorageBackend, "Storage backend: filesystem, mongodb, dynamodb, redis")
	fs.StringVar(&config.DataDir, "data-dir", config.DataDir, "Data directory for the filesystem backend")
	fs.StringVar(&config.MongoURL, "mongo-url", config.MongoURL, "MongoDB connection URL")
	fs.StringVar(&config.MongoDB, "mongo-db", config.MongoDB, "MongoDB database name")
	fs.StringVar(&config.DynamoTable, "dynamo-table", config.DynamoTable, "DynamoDB table name")
	fs.StringVar(&config.DynamoRegion, "dynamo-region", config.DynamoRegion, "DynamoDB region")
	fs.StringVar(&config.RedisAddr, "redis-addr", config.RedisAddr, "Redis address")
	fs.StringVar(&config.OfficialFile, "official-file", config.OfficialFile, "JSON file of permanent official listings installed at startup")
	_ = fs.Parse(os.Args[1:])

	// Override with environment variables if present
	if val := os.Getenv("TASKGRAB_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Port = port
		}
	}
	if val := os.Getenv("TASKGRAB_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			config.DefaultTTL = ttl
		}
	}
	if val := os.Getenv("TASKGRAB_STORAGE"); val != "" {
		config.StorageBackend = val
	}
	if val := os.Getenv("TASKGRAB_DATA_DIR"); val != "" {
		config.DataDir = val
	}
	if val := os.Getenv("TASKGRAB_MONGO_URL"); val != "" {
		config.MongoURL = val
	}
	if val := os.Getenv("TASKGRAB_MONGO_DB"); val != "" {
		config.MongoDB = val
	}
	if val := os.Getenv("TASKGRAB_DYNAMO_TABLE"); val != "" {
		config.DynamoTable = val
	}
	if val := os.Getenv("TASKGRAB_DYNAMO_REGION"); val != "" {
		config.DynamoRegion = val
	}
	if val := os.Getenv("TASKGRAB_REDIS_ADDR"); val != "" {
		config.RedisAddr = val
	}
	if val := os.Getenv("TASKGRAB_OFFICIAL_FILE"); val != "" {
		config.OfficialFile = val
	}

	return config
}
