package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/driftnote/driftnote/internal/auth"
	"github.com/driftnote/driftnote/internal/config"
	"github.com/driftnote/driftnote/internal/deeplink"
	"github.com/driftnote/driftnote/internal/notes"
	"github.com/driftnote/driftnote/internal/tui"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	versionFlag := flag.Bool("version", false, "print version and exit")

	// Some launchers hand credentials over pre-parsed instead of (or in
	// addition to) the raw driftnote:// URL; these flags are that structured
	// source. Fragment credentials can only arrive via the URL argument.
	code := flag.String("code", "", "PKCE recovery code from a reset link")
	accessToken := flag.String("access-token", "", "implicit-flow access token from a reset link")
	refreshToken := flag.String("refresh-token", "", "implicit-flow refresh token from a reset link")
	token := flag.String("token", "", "one-time recovery code from a reset link")
	tokenHash := flag.String("token-hash", "", "hashed one-time recovery code from a reset link")
	flag.Parse()

	if *versionFlag {
		fmt.Println("driftnote", version)
		os.Exit(0)
	}

	if os.Getenv("DRIFTNOTE_DEBUG") != "" {
		f, err := tea.LogToFile("driftnote-debug.log", "debug")
		if err == nil {
			defer f.Close()
		}
	}

	rawURL := flag.Arg(0)
	routerParams := deeplink.Params{
		Code:         *code,
		AccessToken:  *accessToken,
		RefreshToken: *refreshToken,
		Token:        *token,
		TokenHash:    *tokenHash,
	}

	// If an instance is already running, hand the activation URL to it.
	socketPath := deeplink.DefaultSocketPath()
	if rawURL != "" {
		if err := deeplink.Forward(socketPath, rawURL); err == nil {
			return
		}
	}

	configPath := config.DefaultConfigPath()
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Backend.URL == "" {
		fmt.Fprintf(os.Stderr, "backend.url is not set: add it to %s or set DRIFTNOTE_URL\n", configPath)
		os.Exit(1)
	}

	auth.Configure(cfg.Backend.URL, cfg.Backend.AnonKey)
	authClient := auth.Default()
	authClient.OnSessionChange = func(s auth.Session) {
		cfg.Session.AccessToken = s.AccessToken
		cfg.Session.RefreshToken = s.RefreshToken
		if saveErr := config.Save(configPath, cfg); saveErr != nil {
			log.Printf("saving session: %v", saveErr)
		}
	}

	hasSession := false
	if cfg.Session.AccessToken != "" {
		// Adopt the persisted pair; an expired access token refreshes
		// silently. Failure just means signing in again.
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if setErr := authClient.SetSession(ctx, cfg.Session.AccessToken, cfg.Session.RefreshToken); setErr == nil {
			hasSession = true
		}
		cancel()
	}

	notesClient := notes.NewClient(cfg.Backend.URL, cfg.Backend.AnonKey, authClient)

	var links <-chan string
	listener, err := deeplink.Listen(socketPath)
	if err != nil {
		log.Printf("deep-link listener unavailable: %v", err)
	} else {
		defer listener.Close()
		links = listener.URLs()
	}

	m := tui.NewAppModel(authClient, notesClient, routerParams, rawURL, hasSession)
	tui.Run(m, links)
}
