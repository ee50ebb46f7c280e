package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vijay-varadarajan/AutoAgent/internal/cli"
	internal_http "github.com/vijay-varadarajan/AutoAgent/internal/http"
	"github.com/vijay-varadarajan/AutoAgent/internal/log"
	"github.com/vijay-varadarajan/AutoAgent/internal/parser"
	internal_storage "github.com/vijay-varadarajan/AutoAgent/internal/storage"
	"github.com/vijay-varadarajan/AutoAgent/internal/telegram"
	"github.com/vijay-varadarajan/AutoAgent/pkg/auth"
	"github.com/vijay-varadarajan/AutoAgent/pkg/capability"
	"github.com/vijay-varadarajan/AutoAgent/pkg/engine"
)

var rootCmd = &cobra.Command{Use: "autoagent"}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and HTTP server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.GetLogger().Debugf("No .env file found: %v", err)
		}
		logger := log.GetLogger()

		botToken := mustEnv("TELEGRAM_BOT_TOKEN")
		geminiKey := mustEnv("GEMINI_API_KEY")
		clientID := mustEnv("GOOGLE_CLIENT_ID")
		clientSecret := mustEnv("GOOGLE_CLIENT_SECRET")
		redirectURL := mustEnv("GOOGLE_REDIRECT_URL")
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}

		connStr, _ := cmd.Flags().GetString("db")
		if connStr == "" {
			connStr = connStrFromEnv()
		}
		store, err := internal_storage.InitStore(connStr)
		if err != nil {
			logger.Errorf("Failed to initialize store: %v", err)
			os.Exit(1)
		}
		defer store.Close()

		manager := auth.NewManager(clientID, clientSecret, redirectURL, capability.GmailScopes(), store)
		registry := capability.NewRegistry()
		capability.RegisterGmail(registry, manager)
		gate := auth.NewGate(store, registry)

		bot, err := telegram.NewBot(botToken, store, registry, gate, parser.NewClient(geminiKey), manager)
		if err != nil {
			logger.Errorf("Failed to create Telegram bot: %v", err)
			os.Exit(1)
		}

		notifiers := func(userID string) engine.Notifier {
			return telegram.NewBackgroundNotifier(bot.API(), store, userID)
		}
		resumer := engine.NewResumer(store, registry, gate, notifiers, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go bot.Start(ctx)

		if err := internal_http.StartServer(port, store, manager, resumer); err != nil {
			logger.Errorf("HTTP server exited: %v", err)
			os.Exit(1)
		}
	},
}

func mustEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable is required\n", name)
		os.Exit(1)
	}
	return v
}

func connStrFromEnv() string {
	dbUsername := os.Getenv("DB_USERNAME")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")
	if dbUsername == "" || dbPassword == "" || dbHost == "" || dbPort == "" || dbName == "" {
		fmt.Println("Error: --db flag or complete DB_* env vars (DB_USERNAME, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME) required")
		os.Exit(1)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUsername, dbPassword, dbHost, dbPort, dbName)
}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (optional if DB_* env vars are set)")
	rootCmd.AddCommand(serveCmd)
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
