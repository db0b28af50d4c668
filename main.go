package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"example.com/socialfeed/cmd/server"
	"example.com/socialfeed/cmd/worker"
	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/credential"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/oracle"
	"example.com/socialfeed/internal/session"
	"example.com/socialfeed/internal/social"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/upload"
	"example.com/socialfeed/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

var logg = logger.New()

var cfg *config.Config

// rootCmd runs the process selected by MODE.
var rootCmd = &cobra.Command{
	Use:           "socialfeed",
	Short:         "Social feed API server and activity worker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize application configuration
		cfg = config.Init()
		logger.SetLevel(cfg.LogLevel)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch cfg.Mode {
		case "server":
			return runServer(cmd.Context())
		case "worker":
			return runWorker(cmd.Context())
		default:
			return fmt.Errorf("unknown mode: %s", cfg.Mode)
		}
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume domain events and write activity entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorker(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().String("addr", "", "HTTP listen address (SERVER_ADDR)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (LOG_LEVEL)")
	_ = viper.BindPFlag("SERVER_ADDR", rootCmd.PersistentFlags().Lookup("addr"))
	_ = viper.BindPFlag("LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(workerCmd)
}

func kafkaConfig() appkafka.KafkaConfig {
	return appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}
}

func runServer(ctx context.Context) error {
	st, err := store.New(ctx)
	if err != nil {
		return fmt.Errorf("store connection failed: %w", err)
	}
	defer st.Close()

	var publisher appkafka.Publisher = appkafka.NopPublisher{}
	if cfg.KafkaEnabled {
		kafkaWriter, err := appkafka.NewKafkaWriter(kafkaConfig())
		if err != nil {
			return fmt.Errorf("kafka writer init failed: %w", err)
		}
		defer kafkaWriter.Close()
		publisher = appkafka.NewEventPublisher(kafkaWriter)
	} else {
		logg.Warn("main", "Kafka disabled, domain events are dropped")
	}

	if cfg.SessionSecret == config.DefaultSessionSecret {
		logg.Warn("main", "SESSION_SECRET is the development default, set a real secret")
	}

	clock := util.NewRealClock()
	sessions := session.NewManager(st, cfg.SessionSecret, cfg.SessionTTL, clock)

	saver, err := upload.NewSaver(cfg.UploadDir, clock)
	if err != nil {
		return err
	}

	srv := server.New(
		social.NewAccountService(st, sessions, credential.NewBcrypt(bcrypt.DefaultCost), publisher, clock),
		social.NewFeedService(st, publisher, clock),
		sessions,
		saver,
		oracle.New(cfg.OracleFactURL, cfg.OracleImageURL, cfg.OracleTimeout),
		server.Options{
			BasePath:       cfg.BasePath,
			CookieName:     cfg.SessionCookie,
			SessionTTL:     cfg.SessionTTL,
			SecureCookie:   cfg.TLSCertFile != "" && cfg.TLSKeyFile != "",
			UploadMaxBytes: cfg.UploadMaxBytes,
		},
	)
	return server.Run(ctx, srv, cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
}

func runWorker(ctx context.Context) error {
	if !cfg.KafkaEnabled {
		return fmt.Errorf("worker mode requires KAFKA_ENABLED=true")
	}

	st, err := store.New(ctx)
	if err != nil {
		return fmt.Errorf("store connection failed: %w", err)
	}

	w := worker.New(st, appkafka.NewKafkaReader(kafkaConfig()), cfg.WorkerCount, cfg.WorkerQueueSize)
	w.Run(ctx)
	return w.Close()
}

func main() {
	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logg.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
	logg.Info("main", "Shutdown completed")
}
