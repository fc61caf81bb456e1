package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/hotstore/internal/client"
	"github.com/alfredjeanlab/hotstore/internal/ui"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	serverAddr string
	httpURL    string
	transport  string
	token      string
	jsonOutput bool
	noColor    bool

	eventsClient client.EventsClient
)

func defaultHTTPURL() string {
	if s := os.Getenv("HOTSTORE_HTTP_URL"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.HTTPURL != "" {
		return r.HTTPURL
	}
	return "http://localhost:8080"
}

func defaultServer() string {
	if s := os.Getenv("HOTSTORE_SERVER"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.URL != "" {
		return r.URL
	}
	return "localhost:9090"
}

func defaultToken() string {
	if s := os.Getenv("HOTSTORE_TOKEN"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok {
		return r.Token
	}
	return ""
}

// newClient builds the client selected by --transport.
func newClient() (client.EventsClient, error) {
	switch transport {
	case "http":
		return client.NewHTTPClient(httpURL, token), nil
	case "grpc":
		c, err := client.NewGRPCClient(serverAddr, token)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to server: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown transport %q (must be http or grpc)", transport)
	}
}

// httpClient returns an HTTP client regardless of --transport, for the
// operations only the HTTP API offers.
func httpClient() *client.HTTPClient {
	return client.NewHTTPClient(httpURL, token)
}

var rootCmd = &cobra.Command{
	Use:           "hs <command>",
	Short:         "Client and server for the hotstore event log",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.ForceNoColor()
		} else {
			ui.Init()
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		eventsClient = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if eventsClient != nil {
			eventsClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", defaultServer(), "gRPC server address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "http", "transport protocol (http or grpc)")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)
	cobra.EnableCommandSorting = false

	// Events
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(feedCmd)

	// Views
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(botsCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error:"), err)
		os.Exit(1)
	}
}
