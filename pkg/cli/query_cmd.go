package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

type queryResult struct {
	Columns         []string        `json:"columns"`
	Rows            [][]interface{} `json:"rows"`
	RowCount        int             `json:"row_count"`
	DecisionOutcome string          `json:"decision_outcome"`
	AuditRecordID   string          `json:"audit_record_id"`
}

type authorizeResult struct {
	Outcome        string   `json:"outcome"`
	Reason         string   `json:"reason"`
	RewrittenSQL   string   `json:"rewritten_sql"`
	AppliedPolicy  []string `json:"applied_policy_ids"`
	MaskedColumns  []string `json:"masked_columns"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Tables         []string `json:"tables"`
	StatementKind  string   `json:"statement_kind"`
}

func newQueryCmd(client *Client) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Execute a SQL statement through the enforcement pipeline",
		Args:  cobra.ExactArgs(1),
		Example: `  # Execute a statement
  sqlguardctl query "SELECT id, email FROM users LIMIT 10"

  # Show the decision without executing
  sqlguardctl query --dry-run "DELETE FROM orders WHERE status = 'stale'"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"sql": args[0]}
			if dryRun {
				data, err := client.Do(http.MethodPost, "/v1/queries/authorize", nil, body)
				if err != nil {
					return err
				}
				return printAuthorizeResult(cmd, data)
			}
			data, err := client.Do(http.MethodPost, "/v1/queries", nil, body)
			if err != nil {
				return err
			}
			return printQueryResult(cmd, data)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Authorize only, do not execute")
	return cmd
}

func printQueryResult(cmd *cobra.Command, data []byte) error {
	var res queryResult
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if getOutputFormat(cmd) == "json" {
		return printJSON(os.Stdout, res)
	}

	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				cells[j] = "NULL"
				continue
			}
			cells[j] = fmt.Sprintf("%v", v)
		}
		rows[i] = cells
	}
	if err := printTable(os.Stdout, res.Columns, rows); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%d row(s), decision %s\n", res.RowCount, res.DecisionOutcome)
	return nil
}

func printAuthorizeResult(cmd *cobra.Command, data []byte) error {
	var res authorizeResult
	if err := json.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if getOutputFormat(cmd) == "json" {
		return printJSON(os.Stdout, res)
	}

	fmt.Fprintf(os.Stdout, "Outcome:   %s\n", res.Outcome)
	if res.Reason != "" {
		fmt.Fprintf(os.Stdout, "Reason:    %s\n", res.Reason)
	}
	fmt.Fprintf(os.Stdout, "Statement: %s on %v\n", res.StatementKind, res.Tables)
	if res.RewrittenSQL != "" {
		fmt.Fprintf(os.Stdout, "Rewritten: %s\n", res.RewrittenSQL)
	}
	if len(res.MaskedColumns) > 0 {
		fmt.Fprintf(os.Stdout, "Masked:    %v\n", res.MaskedColumns)
	}
	if res.TimeoutSeconds > 0 {
		fmt.Fprintf(os.Stdout, "Timeout:   %ds\n", res.TimeoutSeconds)
	}
	if len(res.AppliedPolicy) > 0 {
		fmt.Fprintf(os.Stdout, "Policies:  %v\n", res.AppliedPolicy)
	}
	return nil
}
