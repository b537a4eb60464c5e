package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type templateRecord struct {
	ID        string    `json:"id"`
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type approvalRecord struct {
	ID              string `json:"id"`
	TemplateID      string `json:"template_id"`
	TemplateVersion int    `json:"template_version"`
	RequestedBy     string `json:"requested_by"`
	Status          string `json:"status"`
	Comments        string `json:"comments"`
}

func newTemplateCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage SQL templates and their approvals",
	}
	cmd.AddCommand(newTemplateListCmd(client))
	cmd.AddCommand(newTemplateSubmitCmd(client))
	cmd.AddCommand(newApprovalListCmd(client))
	cmd.AddCommand(newApprovalResolveCmd(client, true))
	cmd.AddCommand(newApprovalResolveCmd(client, false))
	return cmd
}

func newTemplateListCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := client.Do(http.MethodGet, "/v1/templates", nil, nil)
			if err != nil {
				return err
			}
			var envelope struct {
				Data []templateRecord `json:"data"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, envelope.Data)
			}
			rows := make([][]string, len(envelope.Data))
			for i, t := range envelope.Data {
				rows[i] = []string{
					t.ID, strconv.Itoa(t.Version), t.Name, t.Status, t.CreatedBy,
				}
			}
			return printTable(os.Stdout,
				[]string{"ID", "VERSION", "NAME", "STATUS", "CREATED_BY"}, rows)
		},
	}
}

func newTemplateSubmitCmd(client *Client) *cobra.Command {
	var version int

	cmd := &cobra.Command{
		Use:   "submit <template-id>",
		Short: "Submit a draft template version for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/templates/%s/versions/%d/submit", args[0], version)
			data, err := client.Do(http.MethodPost, path, nil, nil)
			if err != nil {
				return err
			}
			var req approvalRecord
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, req)
			}
			fmt.Fprintf(os.Stdout, "Submitted; approval request %s is %s\n", req.ID, req.Status)
			return nil
		},
	}

	cmd.Flags().IntVar(&version, "version", 1, "Template version to submit")
	return cmd
}

func newApprovalListCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending approval requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := client.Do(http.MethodGet, "/v1/approvals", nil, nil)
			if err != nil {
				return err
			}
			var envelope struct {
				Data []approvalRecord `json:"data"`
			}
			if err := json.Unmarshal(data, &envelope); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, envelope.Data)
			}
			rows := make([][]string, len(envelope.Data))
			for i, a := range envelope.Data {
				rows[i] = []string{
					a.ID, a.TemplateID, strconv.Itoa(a.TemplateVersion), a.RequestedBy,
				}
			}
			return printTable(os.Stdout,
				[]string{"ID", "TEMPLATE", "VERSION", "REQUESTED_BY"}, rows)
		},
	}
}

func newApprovalResolveCmd(client *Client, approve bool) *cobra.Command {
	verb, short := "approve", "Approve a pending request"
	if !approve {
		verb, short = "reject", "Reject a pending request (comments required)"
	}

	var comments string

	cmd := &cobra.Command{
		Use:   verb + " <request-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/v1/approvals/%s/%s", args[0], verb)
			data, err := client.Do(http.MethodPost, path, nil, map[string]string{"comments": comments})
			if err != nil {
				return err
			}
			var req approvalRecord
			if err := json.Unmarshal(data, &req); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if getOutputFormat(cmd) == "json" {
				return printJSON(os.Stdout, req)
			}
			fmt.Fprintf(os.Stdout, "Request %s is now %s\n", req.ID, req.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&comments, "comments", "", "Reviewer comments")
	return cmd
}
