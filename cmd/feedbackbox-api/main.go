package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/config"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/database"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/feedback"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/rpc"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/server"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/telemetry"
	"github.com/MarcoPoloResearchLab/feedbackbox/backend/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "feedbackbox-api",
		Short: "Feedback box backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueSessionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Database DSN or SQLite path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "TAuth session signing secret (overrides env)")
	cmd.PersistentFlags().String("cookie-name", defaults.GetString("tauth.cookie_name"), "TAuth session cookie name")
	cmd.PersistentFlags().StringSlice("cors-origins", defaults.GetStringSlice("cors.allowed_origins"), "Allowed CORS origins")
	cmd.PersistentFlags().String("otel-endpoint", "", "OTLP/HTTP trace endpoint (empty disables export)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "tauth.cookie_name", "cookie-name")
	bindFlag(cmd, "cors.allowed_origins", "cors-origins")
	bindFlag(cmd, "otel.endpoint", "otel-endpoint")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tel, err := telemetry.Setup(ctx, appConfig.OTel)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	db, err := database.Open(appConfig.DatabaseDriver, appConfig.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	handler, err := newHandler(appConfig, db, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func newHandler(appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (http.Handler, error) {
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
		Leeway:        appConfig.SessionLeeway,
	})
	if err != nil {
		return nil, err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return nil, err
	}

	builder, err := rpc.NewBuilder(rpc.BuilderConfig{
		Tracer: telemetry.Tracer(),
		Users:  userService,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	store, err := feedback.NewGormStore(db, time.Now)
	if err != nil {
		return nil, err
	}
	realtime := server.NewRealtimeDispatcher()
	feedbackService, err := feedback.NewService(feedback.ServiceConfig{
		Store:      store,
		Clock:      time.Now,
		IDProvider: feedback.NewUUIDProvider(),
		Logger:     logger,
		Events:     realtime,
	})
	if err != nil {
		return nil, err
	}

	postRouter, err := feedback.NewRouter(builder.Protected(), feedbackService).RPC()
	if err != nil {
		return nil, err
	}
	sessionRouter, err := server.NewSessionRouter(builder.Public())
	if err != nil {
		return nil, err
	}
	procedures, err := rpc.MergeRouters(postRouter, sessionRouter)
	if err != nil {
		return nil, err
	}

	tracingService := ""
	if appConfig.OTel.Enabled() {
		tracingService = appConfig.OTel.ServiceName
	}

	return server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Users:            userService,
		Procedures:       procedures,
		Realtime:         realtime,
		Logger:           logger,
		AllowedOrigins:   appConfig.CORSAllowedOrigins,
		MutationLimit:    rate.Limit(appConfig.MutationsPerSecond),
		MutationBurst:    appConfig.MutationBurst,
		TracingService:   tracingService,
	})
}

func newIssueSessionCommand() *cobra.Command {
	var (
		userID      string
		email       string
		displayName string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Mint a session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = appConfig.SessionTTL
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.TAuthSigningKey),
				Issuer:        appConfig.TAuthIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresAt, err := issuer.Issue(auth.SessionIdentity{
				UserID:      userID,
				Email:       email,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", appConfig.TAuthCookieName, token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "User id placed in the session")
	cmd.Flags().StringVar(&email, "email", "", "User email placed in the session")
	cmd.Flags().StringVar(&displayName, "display-name", "", "User display name placed in the session")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Session lifetime (defaults to tauth.session_ttl)")
	if err := cmd.MarkFlagRequired("user-id"); err != nil {
		panic(err)
	}
	return cmd
}
