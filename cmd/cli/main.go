package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
	tenant  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fintrack-cli",
		Short: "Fintrack sync engine CLI",
		Long:  `A command line interface for inspecting and driving the fintrack sync engine.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the sync engine admin API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "Tenant override (defaults to the engine's configured tenant)")

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Mutation queue operations",
	}
	queueCmd.AddCommand(
		queueStatsCmd(),
		queueGetCmd(),
		queueDrainCmd(),
		queueReclaimCmd(),
		queueRetryFailedCmd(),
		enqueueCmd(),
	)
	rootCmd.AddCommand(queueCmd)

	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(pullCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func queueStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodGet, "/api/v1/queue/statistics", nil)
		},
	}
}

func queueGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one queue entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodGet, "/api/v1/queue/"+args[0], nil)
		},
	}
}

func queueDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Push all due pending entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/api/v1/queue/drain", nil)
		},
	}
}

func queueReclaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Reset stuck processing entries to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/api/v1/queue/reclaim", nil)
		},
	}
}

func queueRetryFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Return failed entries to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/api/v1/queue/retry-failed", nil)
		},
	}
}

func enqueueCmd() *cobra.Command {
	var (
		entityType string
		entityID   string
		operation  string
		payload    string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a local mutation",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]any{
				"entity_type":    entityType,
				"entity_id":      entityID,
				"operation_type": operation,
				"payload":        json.RawMessage(payload),
			})
			if err != nil {
				return err
			}
			return request(http.MethodPost, "/api/v1/queue", body)
		},
	}

	cmd.Flags().StringVar(&entityType, "type", "transaction", "Entity type (transaction, account, category)")
	cmd.Flags().StringVar(&entityID, "id", "", "Entity ID")
	cmd.Flags().StringVar(&operation, "op", "create", "Operation (create, update, delete)")
	cmd.Flags().StringVar(&payload, "payload", "{}", "Operation payload as JSON")
	cmd.MarkFlagRequired("id")

	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <YYYY-MM>",
		Short: "Show the monthly balance snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodGet, "/api/v1/balances/"+args[0], nil)
		},
	}
}

func pullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <entity-type>",
		Short: "Run one incremental pull cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/api/v1/pull/"+args[0], nil)
		},
	}
}

func request(method, path string, body []byte) error {
	url := baseURL + path
	if tenant != "" {
		url += "?tenantId=" + tenant
	}

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	printJSON(decoded)
	return nil
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Printf("failed to render response: %v\n", err)
		return
	}
	fmt.Println(string(out))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
