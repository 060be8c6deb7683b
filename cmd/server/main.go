package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jwillz7667/verbio-auth/auth"
	"github.com/jwillz7667/verbio-auth/identity"
	"github.com/jwillz7667/verbio-auth/identity/identityfake"
	"github.com/jwillz7667/verbio-auth/internal/config"
	"github.com/jwillz7667/verbio-auth/notifier"
	"github.com/jwillz7667/verbio-auth/postgres"
	"github.com/jwillz7667/verbio-auth/server"
	"github.com/jwillz7667/verbio-auth/token"
	"github.com/jwillz7667/verbio-auth/token/refresh"
	"github.com/jwillz7667/verbio-auth/token/refresh/repofake"
	"github.com/jwillz7667/verbio-auth/users"
	userrepofake "github.com/jwillz7667/verbio-auth/users/repofake"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatal().Err(err).Msg("error running server")
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	handler, err := bootstrap(context.Background(), c)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(srv)
	waitForStopSignal()
	returnError = shutdown(srv)
	return returnError
}

// bootstrap wires repositories, the signer, and the auth service into an
// HTTP handler. With no DATABASE_URL the server runs on in-memory
// repositories; with no Apple credentials it falls back to a fake verifier.
// Both fallbacks are for local development only.
func bootstrap(ctx context.Context, c config.Config) (http.Handler, error) {
	keyPair, err := loadOrGenerateKeyPair(c)
	if err != nil {
		return nil, err
	}
	signer := token.NewKeyPairSigner(keyPair)
	issuer := token.NewIssuer(signer, c.GetTokenIssuer(), c.GetTokenAudience(),
		token.WithAccessTokenTTL(c.GetAccessTokenTTL()))

	var userRepo users.Repo
	var refreshRepo refresh.Repo
	if dsn := c.GetDatabaseURL(); dsn != "" {
		db, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		userRepo = postgres.NewUserRepo(db)
		refreshRepo = postgres.NewRefreshTokenRepo(db)
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory repositories")
		userRepo = userrepofake.NewFakeUserRepo()
		refreshRepo = repofake.NewFakeRefreshTokenRepo()
	}

	var verifier identity.Verifier
	if clientID := c.GetAppleClientID(); clientID != "" {
		verifier, err = identity.NewAppleVerifier(ctx, clientID)
		if err != nil {
			return nil, err
		}
	} else {
		if c.GetEnv() != "DEV" {
			return nil, errors.New("APPLE_CLIENT_ID is required outside DEV")
		}
		log.Warn().Msg("APPLE_CLIENT_ID not set, using fake identity verifier")
		verifier = identityfake.NewFakeVerifier()
	}

	refreshManager := refresh.NewManager(refreshRepo, refresh.WithTTL(c.GetRefreshTokenTTL()))
	go purgeExpiredLoop(refreshManager)

	var securityNotifier notifier.SecurityNotifier = notifier.Noop{}
	if url := c.GetSecurityWebhookURL(); url != "" {
		securityNotifier = notifier.NewWebhook(url)
	}

	authService, err := auth.NewService(auth.Repos{Users: userRepo}, verifier, issuer, refreshManager,
		auth.WithSecurityNotifier(securityNotifier))
	if err != nil {
		return nil, err
	}

	return server.New(c, authService, issuer, signer), nil
}

// purgeExpiredLoop enforces the retention policy on the append-only refresh
// token trail: rows expired for over 90 days carry no audit value.
func purgeExpiredLoop(manager *refresh.Manager) {
	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		n, err := manager.PurgeExpired(context.Background(), 90*24*time.Hour)
		if err != nil {
			log.Warn().Err(err).Msg("refresh token purge failed")
			continue
		}
		if n > 0 {
			log.Info().Int64("purged", n).Msg("purged expired refresh tokens")
		}
	}
}

func loadOrGenerateKeyPair(c config.Config) (*token.KeyPair, error) {
	if pemData := c.GetSigningKeyPEM(); pemData != "" {
		return token.LoadRSAKeyPairFromPEM(c.GetSigningKeyID(), pemData)
	}
	if c.GetEnv() != "DEV" {
		return nil, errors.New("SIGNING_KEY_PEM is required outside DEV")
	}
	log.Warn().Msg("SIGNING_KEY_PEM not set, generating ephemeral key")
	return token.GenerateRSAKeyPair(c.GetSigningKeyID(), 2048)
}

func setupLogging(c config.Config) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
