package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/spaauth/pkg/authapi"
	"github.com/aussiebroadwan/spaauth/pkg/authsdk"
	"github.com/aussiebroadwan/spaauth/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application signs a user in through the browser, keeps the session until
// it is told to stop and then signs out.
type Application struct {
	cfg    Config
	logger *slog.Logger
	out    io.Writer

	client *authsdk.Client
	api    *authapi.AuthAPI

	server   *http.Server
	listener net.Listener
	results  chan signInResult
}

type signInResult struct {
	state authapi.State
	err   error
}

// New creates an Application. Nothing talks to the network until Start.
func New(cfg Config) *Application {
	logger := slogx.New(slogx.Config{
		Service: "spaauth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	return newApplication(cfg, logger, os.Stdout)
}

func newApplication(cfg Config, logger *slog.Logger, out io.Writer) *Application {
	client := authsdk.New()
	return &Application{
		cfg:     cfg,
		logger:  logger,
		out:     out,
		client:  client,
		api:     authapi.New(client),
		results: make(chan signInResult, 1),
	}
}

// Run starts the application and blocks until sign in fails or shutdown is
// requested.
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signInURL, err := app.Start(ctx)
	if err != nil {
		return err
	}
	if signInURL != "" {
		fmt.Fprintf(app.out, "Open this URL to sign in:\n\n  %s\n\n", signInURL)
	}

	state, err := app.WaitForSignIn(ctx)
	if err != nil {
		_, _ = app.Shutdown()
		return err
	}
	fmt.Fprintf(app.out, "Signed in as %s (%s)\n", state.DisplayName, state.Email)

	if err := app.Probe(ctx); err != nil {
		app.logger.Warn("probe_failed", "url", app.cfg.ProbeURL, "err", err)
	}

	<-ctx.Done()
	app.logger.Info("shutdown signal received")

	endSessionURL, err := app.Shutdown()
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	if endSessionURL != "" {
		fmt.Fprintf(app.out, "Signed out. To end the provider session open:\n\n  %s\n", endSessionURL)
	}
	return nil
}

// Start initializes the client. With a stored session it reports the user
// as signed in straight away and returns an empty URL. Otherwise it starts
// the loopback callback server and returns the URL to open.
func (app *Application) Start(ctx context.Context) (string, error) {
	sdkCfg := app.cfg.SDKConfig()
	sdkCfg.Logger = app.logger
	if _, err := app.api.Init(ctx, sdkCfg); err != nil {
		return "", fmt.Errorf("initialize client: %w", err)
	}

	authenticated, err := app.api.IsAuthenticated(ctx)
	if err != nil {
		return "", err
	}
	if authenticated {
		info, err := app.api.GetBasicUserInfo(ctx)
		if err != nil {
			return "", err
		}
		app.api.UpdateState(statePatch(info))
		app.logger.Info("session_restored", "username", info.Username)
		app.results <- signInResult{state: app.api.GetState()}
		return "", nil
	}

	redirect, err := url.Parse(app.cfg.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}

	app.listener, err = net.Listen("tcp", redirect.Host)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", redirect.Host, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath(redirect), app.handleCallback)
	app.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := app.server.Serve(app.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Error("callback_server_failed", "err", err)
		}
	}()

	signInURL, _, err := app.client.SignInURL(ctx, authsdk.SignInConfig{})
	if err != nil {
		return "", err
	}
	app.logger.Info("callback_server_listening", "addr", app.listener.Addr().String())
	return signInURL, nil
}

// WaitForSignIn blocks until the callback completes or ctx ends.
func (app *Application) WaitForSignIn(ctx context.Context) (authapi.State, error) {
	select {
	case res := <-app.results:
		return res.state, res.err
	case <-ctx.Done():
		return authapi.State{}, ctx.Err()
	}
}

// Probe calls ProbeURL with the access token and logs the outcome.
func (app *Application) Probe(ctx context.Context) error {
	if app.cfg.ProbeURL == "" {
		return nil
	}

	resp, err := app.api.HTTPRequest(ctx, authsdk.HTTPRequestConfig{URL: app.cfg.ProbeURL})
	if err != nil {
		return err
	}
	app.logger.Info("probe_succeeded",
		"url", app.cfg.ProbeURL,
		"status", resp.StatusCode,
		"bytes", len(resp.Body),
		"duration_ms", resp.Duration.Milliseconds(),
	)
	return nil
}

// Shutdown signs out, stops the callback server and closes the client. It
// returns the provider's end-session URL.
func (app *Application) Shutdown() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if app.server != nil {
		if err := app.server.Shutdown(ctx); err != nil {
			app.logger.Error("graceful server shutdown failed", "err", err)
			_ = app.server.Close()
		}
	}

	var endSessionURL string
	authenticated, err := app.api.IsAuthenticated(ctx)
	if err == nil && authenticated {
		endSessionURL, err = app.api.SignOut(ctx, app.dispatch, app.api.GetState(), func() {
			app.logger.Info("signed_out")
		})
	}
	if errors.Is(err, authsdk.ErrNotInitialized) {
		err = nil
	}

	if cerr := app.client.Close(); cerr != nil {
		app.logger.Error("error closing session store", "err", cerr)
	}
	return endSessionURL, err
}

func (app *Application) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if code := q.Get("error"); code != "" {
		err := &authsdk.OAuth2Error{Code: code, Description: q.Get("error_description")}
		app.deliver(signInResult{err: err})
		http.Error(w, "Sign in failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, err := app.api.SignIn(r.Context(), app.dispatch, app.api.GetState(),
		authsdk.SignInConfig{State: q.Get("state")}, q.Get("code"), q.Get("session_state"), nil)
	if err != nil {
		app.deliver(signInResult{err: err})
		http.Error(w, "Sign in failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	state := app.api.GetState()
	app.deliver(signInResult{state: state})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Signed in as %s. You can close this tab.\n", state.DisplayName)
}

// dispatch is the state sink handed to AuthAPI.
func (app *Application) dispatch(s authapi.State) {
	app.logger.Info("auth_state",
		"authenticated", s.IsAuthenticated,
		"username", s.Username,
		"email", s.Email,
		"scopes", s.AllowedScopes,
	)
}

// deliver hands a result to WaitForSignIn. Later callbacks are dropped.
func (app *Application) deliver(res signInResult) {
	select {
	case app.results <- res:
	default:
	}
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func statePatch(info authsdk.BasicUserInfo) authapi.StatePatch {
	return authapi.StatePatch{
		IsAuthenticated: authapi.Bool(true),
		DisplayName:     authapi.String(info.DisplayName),
		Email:           authapi.String(info.Email),
		Username:        authapi.String(info.Username),
		AllowedScopes:   authapi.String(info.AllowedScopes),
	}
}
