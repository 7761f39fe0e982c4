package main

import (
	"fmt"
	"os"

	"github.com/apexops/dashboard/internal/client"
	"github.com/apexops/dashboard/internal/logging"
	app "github.com/apexops/dashboard/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:5000/ws", "WebSocket URL of the ApexOps backend")
	origin := flag.String("origin", "", "Page origin (http[s]://host:port); overrides --url")
	token := flag.String("token", "", "Auth token (if backend requires it)")
	userID := flag.String("user", "", "User whose dashboard summary is shown")
	logFile := flag.String("log-file", "", "Write client logs to this file")
	retries := flag.Int("max-retries", client.DefaultMaxRetries, "Reconnection attempts before giving up")
	retryDelay := flag.Duration("retry-delay", client.DefaultRetryDelay, "Delay between reconnection attempts")
	flag.Parse()

	endpoint := *wsURL
	if *origin != "" {
		var err error
		if endpoint, err = client.EndpointFromOrigin(*origin); err != nil {
			fail(err)
		}
	}
	httpBase, err := client.HTTPBaseFromEndpoint(endpoint)
	if err != nil {
		fail(err)
	}

	// The alt screen owns stdout, so logs go to a file or nowhere.
	log := zerolog.Nop()
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		log = logging.Component(logging.New("debug", "console", f), "tui")
	}

	bridge := app.NewBridge()
	ws := client.New(endpoint,
		client.WithHandlers(bridge.Handlers()),
		client.WithToken(*token),
		client.WithRetry(*retryDelay, *retries),
		client.WithLogger(log),
	)
	httpClient := client.NewHTTPClient(httpBase, *token)

	m := app.New(ws, httpClient, bridge, app.Config{Endpoint: endpoint, UserID: *userID})
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
