package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// App mode & server
	Mode        string
	ServerAddr  string
	BasePath    string
	TLSCertFile string
	TLSKeyFile  string
	LogLevel    string

	// Store backend: "cassandra" or "mongo"
	StoreBackend string

	// Kafka
	KafkaEnabled bool
	KafkaBroker  string
	KafkaTopic   string
	KafkaGroupID string
	KafkaReadTO  time.Duration
	KafkaWriteTO time.Duration

	// Cassandra
	CassandraHost     string
	CassandraKeyspace string
	CassandraUsername string
	CassandraPassword string
	CassandraTimeout  time.Duration
	CassandraDC       string
	MigrationsPath    string

	// Mongo
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// Sessions
	SessionSecret string
	SessionTTL    time.Duration
	SessionCookie string

	// Uploads
	UploadDir      string
	UploadMaxBytes int64

	// Oracle
	OracleFactURL  string
	OracleImageURL string
	OracleTimeout  time.Duration

	// Worker
	WorkerCount     int
	WorkerQueueSize int
}

// DefaultSessionSecret is only meant for local development.
const DefaultSessionSecret = "change_this_secret"

var cfg *Config

// Init loads the config using Viper and returns it
func Init() *Config {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	viper.SetDefault("MODE", "server")
	viper.SetDefault("SERVER_ADDR", ":8080")
	viper.SetDefault("BASE_PATH", "")
	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("STORE_BACKEND", "cassandra")

	viper.SetDefault("KAFKA_ENABLED", true)
	viper.SetDefault("KAFKA_BROKER", "localhost:29092")
	viper.SetDefault("KAFKA_TOPIC", "social-events")
	viper.SetDefault("KAFKA_GROUP_ID", "activity-worker")
	viper.SetDefault("KAFKA_READ_TIMEOUT", "10s")
	viper.SetDefault("KAFKA_WRITE_TIMEOUT", "10s")

	viper.SetDefault("CASSANDRA_HOST", "localhost")
	viper.SetDefault("CASSANDRA_KEYSPACE", "socialfeed")
	viper.SetDefault("CASSANDRA_TIMEOUT", "10s")
	viper.SetDefault("MIGRATIONS_PATH", "./migrations/cassandra")
	// Optional: Cassandra username/password/DC can be empty

	viper.SetDefault("MONGO_URI", "mongodb://127.0.0.1:27017")
	viper.SetDefault("MONGO_DATABASE", "socialfeed")
	viper.SetDefault("MONGO_TIMEOUT", "10s")

	viper.SetDefault("SESSION_SECRET", DefaultSessionSecret)
	viper.SetDefault("SESSION_TTL", "24h")
	viper.SetDefault("SESSION_COOKIE", "sid")

	viper.SetDefault("UPLOAD_DIR", "./uploads")
	viper.SetDefault("UPLOAD_MAX_BYTES", 10<<20)

	viper.SetDefault("ORACLE_FACT_URL", "https://catfact.ninja/fact")
	viper.SetDefault("ORACLE_IMAGE_URL", "https://api.thecatapi.com/v1/images/search")
	viper.SetDefault("ORACLE_TIMEOUT", "5s")

	viper.SetDefault("WORKER_COUNT", 0)
	viper.SetDefault("WORKER_QUEUE_SIZE", 0)

	// Load env variables
	viper.AutomaticEnv()

	// Optional config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	_ = viper.ReadInConfig() // ignore error if no file

	cfg = &Config{
		Mode:              viper.GetString("MODE"),
		ServerAddr:        viper.GetString("SERVER_ADDR"),
		BasePath:          viper.GetString("BASE_PATH"),
		TLSCertFile:       viper.GetString("TLS_CERT_FILE"),
		TLSKeyFile:        viper.GetString("TLS_KEY_FILE"),
		LogLevel:          viper.GetString("LOG_LEVEL"),
		StoreBackend:      viper.GetString("STORE_BACKEND"),
		KafkaEnabled:      viper.GetBool("KAFKA_ENABLED"),
		KafkaBroker:       viper.GetString("KAFKA_BROKER"),
		KafkaTopic:        viper.GetString("KAFKA_TOPIC"),
		KafkaGroupID:      viper.GetString("KAFKA_GROUP_ID"),
		KafkaReadTO:       parseDuration(viper.GetString("KAFKA_READ_TIMEOUT"), 10*time.Second),
		KafkaWriteTO:      parseDuration(viper.GetString("KAFKA_WRITE_TIMEOUT"), 10*time.Second),
		CassandraHost:     viper.GetString("CASSANDRA_HOST"),
		CassandraKeyspace: viper.GetString("CASSANDRA_KEYSPACE"),
		CassandraUsername: viper.GetString("CASSANDRA_USERNAME"),
		CassandraPassword: viper.GetString("CASSANDRA_PASSWORD"),
		CassandraTimeout:  parseDuration(viper.GetString("CASSANDRA_TIMEOUT"), 10*time.Second),
		CassandraDC:       viper.GetString("CASSANDRA_DC"),
		MigrationsPath:    viper.GetString("MIGRATIONS_PATH"),
		MongoURI:          viper.GetString("MONGO_URI"),
		MongoDatabase:     viper.GetString("MONGO_DATABASE"),
		MongoTimeout:      parseDuration(viper.GetString("MONGO_TIMEOUT"), 10*time.Second),
		SessionSecret:     viper.GetString("SESSION_SECRET"),
		SessionTTL:        parseDuration(viper.GetString("SESSION_TTL"), 24*time.Hour),
		SessionCookie:     viper.GetString("SESSION_COOKIE"),
		UploadDir:         viper.GetString("UPLOAD_DIR"),
		UploadMaxBytes:    viper.GetInt64("UPLOAD_MAX_BYTES"),
		OracleFactURL:     viper.GetString("ORACLE_FACT_URL"),
		OracleImageURL:    viper.GetString("ORACLE_IMAGE_URL"),
		OracleTimeout:     parseDuration(viper.GetString("ORACLE_TIMEOUT"), 5*time.Second),
		WorkerCount:       viper.GetInt("WORKER_COUNT"),
		WorkerQueueSize:   viper.GetInt("WORKER_QUEUE_SIZE"),
	}

	return cfg
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// Get returns the loaded config instance
func Get() *Config {
	return cfg
}
