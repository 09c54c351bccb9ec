// cmd/webhookctl/webhook.go
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/javajoker/digistore/internal/services"
)

func paymentEvent(paymentID string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":   services.PaymentEventType,
		"action": "payment.updated",
		"data":   map[string]string{"id": paymentID},
	})
}

func signCmd() *cobra.Command {
	var secret, file string

	cmd := &cobra.Command{
		Use:   "sign [payment-id]",
		Short: "Print the signature header for a webhook body",
		Long: `Print the X-Signature header value for a body.

The body is read from --file, or built as a payment event for the given id.

Examples:
  webhookctl sign PAY123
  webhookctl sign --file body.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("secret not provided and WEBHOOK_SECRET not set")
			}

			var body []byte
			var err error
			switch {
			case file != "":
				body, err = os.ReadFile(file)
			case len(args) == 1:
				body, err = paymentEvent(args[0])
			default:
				return errors.New("either a payment id or --file is required")
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", services.SignatureHeader, services.SignatureHeaderValue(body, secret))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("WEBHOOK_SECRET"), "webhook secret")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the body from a file")

	return cmd
}

func sendCmd() *cobra.Command {
	var secret, url string
	var unsigned bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "send [payment-id]",
		Short: "POST a signed payment event to the webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := paymentEvent(args[0])
			if err != nil {
				return err
			}
			if unsigned {
				secret = ""
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, response, err := sendEvent(ctx, http.DefaultClient, url, body, secret)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", status, response)
			if status != http.StatusOK {
				return fmt.Errorf("webhook answered %d", status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("WEBHOOK_SECRET"), "webhook secret")
	cmd.Flags().StringVar(&url, "url", "http://localhost:8080/webhook", "webhook URL")
	cmd.Flags().BoolVar(&unsigned, "unsigned", false, "send without a signature header")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	return cmd
}

// sendEvent posts body to url, signed with secret when one is given.
func sendEvent(ctx context.Context, client *http.Client, url string, body []byte, secret string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(services.SignatureHeader, services.SignatureHeaderValue(body, secret))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	response, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, string(bytes.TrimSpace(response)), nil
}
