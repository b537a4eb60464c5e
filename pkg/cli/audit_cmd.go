package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

type auditRecord struct {
	ID              string    `json:"id"`
	Actor           string    `json:"actor"`
	Action          string    `json:"action"`
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	DecisionOutcome string    `json:"decision_outcome"`
	Severity        string    `json:"severity"`
	Message         string    `json:"message"`
	CreatedAt       time.Time `json:"created_at"`
}

func newAuditCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCmd(client))
	cmd.AddCommand(newAuditExportCmd(client))
	return cmd
}

func auditQuery(actor, action, severity, since string) (url.Values, error) {
	q := url.Values{}
	if actor != "" {
		q.Set("actor", actor)
	}
	if action != "" {
		q.Set("action", action)
	}
	if severity != "" {
		q.Set("severity", severity)
	}
	if since != "" {
		if _, err := time.Parse(time.RFC3339, since); err != nil {
			return nil, fmt.Errorf("--since must be RFC 3339 (e.g. 2026-08-28T00:00:00Z): %w", err)
		}
		q.Set("since", since)
	}
	return q, nil
}

func newAuditListCmd(client *Client) *cobra.Command {
	var (
		actor    string
		action   string
		severity string
		since    string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := auditQuery(actor, action, severity, since)
			if err != nil {
				return err
			}
			q.Set("max_results", fmt.Sprintf("%d", limit))
			data, err := client.Do(http.MethodGet, "/v1/audit", q, nil)
			if err != nil {
				return err
			}
			var envelope struct {
				Data []auditRecord `json:"data"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, envelope.Data)
			}
			rows := make([][]string, len(envelope.Data))
			for i, rec := range envelope.Data {
				rows[i] = []string{
					rec.CreatedAt.Format(time.RFC3339), rec.Actor, rec.Action,
					rec.DecisionOutcome, rec.Severity, rec.Message,
				}
			}
			return printTable(os.Stdout,
				[]string{"TIME", "ACTOR", "ACTION", "DECISION", "SEVERITY", "MESSAGE"}, rows)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Filter by actor")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity")
	cmd.Flags().StringVar(&since, "since", "", "Only records at or after this RFC 3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum records to return")
	return cmd
}

func newAuditExportCmd(client *Client) *cobra.Command {
	var (
		actor    string
		action   string
		severity string
		since    string
		out      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export audit records as CSV",
		RunE: func(_ *cobra.Command, _ []string) error {
			q, err := auditQuery(actor, action, severity, since)
			if err != nil {
				return err
			}
			data, err := client.Do(http.MethodGet, "/v1/audit/export", q, nil)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = os.Stdout.Write(data)
				return err
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Fprintf(os.Stdout, "Wrote %d bytes to %s\n", len(data), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Filter by actor")
	cmd.Flags().StringVar(&action, "action", "", "Filter by action")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity")
	cmd.Flags().StringVar(&since, "since", "", "Only records at or after this RFC 3339 timestamp")
	cmd.Flags().StringVarP(&out, "out", "f", "", "Output file (default stdout)")
	return cmd
}
