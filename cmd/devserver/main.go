// Command devserver runs an in-process identity provider and a stub invoicing API so the
// session CLI can be exercised locally.
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
	"github.com/jrsteele09/go-invoice-session/apiauth"
	"github.com/jrsteele09/go-invoice-session/idp/idpfake"
	"github.com/jrsteele09/go-invoice-session/internal/config"
	"github.com/jrsteele09/go-invoice-session/internal/devapi"
	"github.com/jrsteele09/go-invoice-session/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	c := config.New(viper.New())
	logger := logging.New(os.Stdout, c.GetEnv(), c.GetLogLevel())

	if err := run(c, logger); err != nil {
		logger.Fatal().Err(err).Msg("error running server")
	}
	logger.Info().Msg("server stopped")
}

func run(c config.Config, logger zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(c.GetAppName())

	handler, err := newHandler(c, logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- listenAndServe(server, logger)
	}()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

// newHandler mounts the identity provider at /idp and the invoicing API at /api/.
func newHandler(c config.Config, logger zerolog.Logger) (http.Handler, error) {
	issuer := fmt.Sprintf("http://localhost%s/idp", c.GetPort())
	provider, err := idpfake.New(c.GetClientID(),
		idpfake.WithIssuer(issuer),
		idpfake.WithTokenLifetime(c.GetDevTokenLifetime()),
		idpfake.WithRefreshRotation(true),
	)
	if err != nil {
		return nil, fmt.Errorf("[newHandler] identity provider: %w", err)
	}
	user, err := provider.AddUser(c.GetDevUserEmail(), c.GetDevUserPassword(), true)
	if err != nil {
		return nil, fmt.Errorf("[newHandler] seed user: %w", err)
	}
	logger.Info().Str("email", user.Email).Str("user_id", user.ID).Msg("seeded development user")

	jwksPath := "/idp/.well-known/jwks.json"
	jwksURL := fmt.Sprintf("http://localhost%s%s", c.GetPort(), jwksPath)
	verifier, err := apiauth.NewRemoteVerifier(context.Background(), issuer, c.GetClientID(), jwksURL)
	if err != nil {
		return nil, fmt.Errorf("[newHandler] verifier: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/idp", provider)
	mux.Handle("GET "+jwksPath, provider.JWKSHandler())
	mux.Handle("/api/", http.StripPrefix("/api", devapi.New(verifier, logger.With().Str("component", "api").Logger())))
	return mux, nil
}

func listenAndServe(server *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", server.Addr).Msg("server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
