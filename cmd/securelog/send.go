package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/al-bashkir/securelog/internal/ipc"
	"github.com/al-bashkir/securelog/internal/shipper"
	"github.com/al-bashkir/securelog/internal/wire"
)

// Send flags
var (
	sendSocket     string
	sendURL        string
	sendLevel      string
	sendLogger     string
	sendFields     []string
	sendStdin      bool
	sendTimeout    time.Duration
	sendTokenURL   string
	sendClientID   string
	sendScopes     []string
	sendNoCompress bool
)

// Environment variables holding send credentials
const (
	apiKeyEnv       = "SECURELOG_API_KEY"
	clientSecretEnv = "SECURELOG_CLIENT_SECRET"
)

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Submit an event to a running daemon",
	Long: `Submit a log event to a securelog daemon.

By default the event is sent over the daemon's Unix socket. With --url it
is sent to the HTTP endpoint instead, authenticated with the API key in
$SECURELOG_API_KEY or, with --token-url, an OAuth2 client-credentials token
(client secret in $SECURELOG_CLIENT_SECRET).

With --stdin the request body is read from stdin as wire JSON (one event
or an array of events) instead of being built from arguments.`,
	RunE: runSend,
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendSocket, "socket", "", "Unix socket path (defaults to listen.socket from the config)")
	f.StringVar(&sendURL, "url", "", "Daemon base URL, e.g. https://logs.example.com:9020")
	f.StringVar(&sendLevel, "level", "INFO", "Event level")
	f.StringVar(&sendLogger, "logger", "", "Logger name")
	f.StringArrayVar(&sendFields, "field", nil, "Extra field as key=value (repeatable)")
	f.BoolVar(&sendStdin, "stdin", false, "Read wire JSON from stdin")
	f.DurationVar(&sendTimeout, "timeout", 10*time.Second, "Request timeout")
	f.StringVar(&sendTokenURL, "token-url", "", "OAuth2 token endpoint for client-credentials")
	f.StringVar(&sendClientID, "client-id", "", "OAuth2 client ID")
	f.StringSliceVar(&sendScopes, "scope", nil, "OAuth2 scopes")
	f.BoolVar(&sendNoCompress, "no-compress", false, "Send the HTTP body without gzip")
}

// runSend builds or reads the payload and submits it
func runSend(cmd *cobra.Command, args []string) error {
	payload, err := sendPayload(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	if sendURL != "" {
		return sendHTTP(ctx, cmd.OutOrStdout(), payload)
	}
	return sendSocketPayload(ctx, cmd.OutOrStdout(), payload)
}

// sendPayload returns the wire JSON to submit
func sendPayload(stdin io.Reader, args []string) ([]byte, error) {
	if sendStdin {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("a message or --stdin is required")
	}

	ev := wire.Event{
		Timestamp: time.Now().UTC(),
		Level:     sendLevel,
		Logger:    sendLogger,
		Message:   strings.Join(args, " "),
	}
	if len(sendFields) > 0 {
		ev.Fields = make(map[string]any, len(sendFields))
		for _, kv := range sendFields {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid --field %q, want key=value", kv)
			}
			ev.Fields[k] = v
		}
	}
	return wire.Encode([]wire.Event{ev})
}

func sendSocketPayload(ctx context.Context, out io.Writer, payload []byte) error {
	socketPath := sendSocket
	if socketPath == "" {
		cfg, err := loadConfig(true)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		socketPath = cfg.Listen.Socket
	}

	client := ipc.NewClient(socketPath)
	client.SetTimeout(sendTimeout)

	resp, err := client.SendRaw(ctx, payload)
	if err != nil {
		return err
	}
	if resp.Status != ipc.StatusOK {
		return fmt.Errorf("daemon rejected events: %s", resp.Error)
	}

	fmt.Fprintf(out, "accepted %d event(s)\n", resp.Accepted)
	return nil
}

func sendHTTP(ctx context.Context, out io.Writer, payload []byte) error {
	opts := shipper.Options{
		URL:                sendURL,
		APIKey:             os.Getenv(apiKeyEnv),
		Timeout:            sendTimeout,
		DisableCompression: sendNoCompress,
	}
	if sendTokenURL != "" {
		opts.APIKey = ""
		opts.Credentials = &clientcredentials.Config{
			ClientID:     sendClientID,
			ClientSecret: os.Getenv(clientSecretEnv),
			TokenURL:     sendTokenURL,
			Scopes:       sendScopes,
		}
	}

	client, err := shipper.New(ctx, opts)
	if err != nil {
		return err
	}

	res, err := client.SendRaw(ctx, payload)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "accepted %d event(s) (request_id %s)\n", res.Accepted, res.RequestID)
	return nil
}
