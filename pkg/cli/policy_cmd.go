package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

type policyRecord struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Scope    string          `json:"scope"`
	ScopeRef string          `json:"scope_ref"`
	Priority string          `json:"priority"`
	Params   json.RawMessage `json:"params"`
	Enabled  bool            `json:"enabled"`
}

func newPolicyCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage security policies",
	}
	cmd.AddCommand(newPolicyListCmd(client))
	cmd.AddCommand(newPolicyCreateCmd(client))
	cmd.AddCommand(newPolicyEnableCmd(client, true))
	cmd.AddCommand(newPolicyEnableCmd(client, false))
	return cmd
}

func newPolicyListCmd(client *Client) *cobra.Command {
	var enabledOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List policies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if enabledOnly {
				q.Set("enabled_only", "true")
			}
			data, err := client.Do(http.MethodGet, "/v1/policies", q, nil)
			if err != nil {
				return err
			}
			var envelope struct {
				Data []policyRecord `json:"data"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, envelope.Data)
			}
			rows := make([][]string, len(envelope.Data))
			for i, p := range envelope.Data {
				rows[i] = []string{
					p.ID, p.Name, p.Type, p.Scope, p.ScopeRef,
					p.Priority, strconv.FormatBool(p.Enabled),
				}
			}
			return printTable(os.Stdout,
				[]string{"ID", "NAME", "TYPE", "SCOPE", "SCOPE_REF", "PRIORITY", "ENABLED"}, rows)
		},
	}

	cmd.Flags().BoolVar(&enabledOnly, "enabled-only", false, "Only show enabled policies")
	return cmd
}

func newPolicyCreateCmd(client *Client) *cobra.Command {
	var (
		name     string
		typ      string
		scope    string
		scopeRef string
		priority string
		params   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a policy",
		Example: `  # Cap result sets for everyone
  sqlguardctl policy create --name row-cap --type MAX_ROWS --scope GLOBAL \
      --priority HIGH --params '{"max_rows": 10000}'

  # Require WHERE on UPDATE/DELETE against the orders table
  sqlguardctl policy create --name orders-where --type WHERE_CLAUSE_REQUIRED \
      --scope TABLE --scope-ref prod.public.orders --priority CRITICAL --params '{}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !json.Valid([]byte(params)) {
				return fmt.Errorf("--params must be valid JSON")
			}
			body := map[string]any{
				"name":      name,
				"type":      typ,
				"scope":     scope,
				"scope_ref": scopeRef,
				"priority":  priority,
				"params":    json.RawMessage(params),
			}
			data, err := client.Do(http.MethodPost, "/v1/policies", nil, body)
			if err != nil {
				return err
			}
			var created policyRecord
			if err := json.Unmarshal(data, &created); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, created)
			}
			fmt.Fprintf(os.Stdout, "Created policy %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Policy name")
	cmd.Flags().StringVar(&typ, "type", "", "Policy type")
	cmd.Flags().StringVar(&scope, "scope", "GLOBAL", "Policy scope")
	cmd.Flags().StringVar(&scopeRef, "scope-ref", "", "Scope reference (role, user, or table address)")
	cmd.Flags().StringVar(&priority, "priority", "MEDIUM", "Policy priority")
	cmd.Flags().StringVar(&params, "params", "{}", "Policy parameters as JSON")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newPolicyEnableCmd(client *Client, enable bool) *cobra.Command {
	verb, short := "enable", "Enable a policy"
	if !enable {
		verb, short = "disable", "Disable a policy"
	}
	return &cobra.Command{
		Use:   verb + " <policy-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "/v1/policies/" + args[0] + "/enabled"
			if _, err := client.Do(http.MethodPut, path, nil, map[string]bool{"enabled": enable}); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Policy %s %sd\n", args[0], verb)
			return nil
		},
	}
}
