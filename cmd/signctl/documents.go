package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// documentsCmd は文書の参照コマンド群。
func documentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Inspect documents",
	}
	cmd.AddCommand(documentsListCmd())
	cmd.AddCommand(documentsStatusCmd())
	cmd.AddCommand(documentsVerifyCmd())
	return cmd
}

func documentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []struct {
				ID          string `json:"id"`
				Title       string `json:"title"`
				Status      string `json:"status"`
				PackageName string `json:"package_name"`
				CreatedAt   string `json:"created_at"`
			}
			body, err := callAPI(cmd.Context(), http.MethodGet, "/api/documents", nil, http.StatusOK, &docs)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tPACKAGE\tCREATED AT")
			for _, d := range docs {
				pkg := d.PackageName
				if pkg == "" {
					pkg = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Title, d.Status, pkg, d.CreatedAt)
			}
			return w.Flush()
		},
	}
}

func documentsStatusCmd() *cobra.Command {
	var documentID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a document's status and signatures",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status struct {
				Status       string `json:"status"`
				ErrorMessage string `json:"error_message"`
				Signatures   []struct {
					SignerName string  `json:"signer_name"`
					SignerIIN  string  `json:"signer_iin"`
					Status     string  `json:"status"`
					SignedAt   *string `json:"signed_at"`
				} `json:"signatures"`
			}
			body, err := callAPI(cmd.Context(), http.MethodGet, "/api/documents/"+documentID, nil, http.StatusOK, &status)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Document %s: %s\n", documentID, status.Status)
			if status.ErrorMessage != "" {
				fmt.Fprintf(out, "Error: %s\n", status.ErrorMessage)
			}
			for _, s := range status.Signatures {
				signedAt := "-"
				if s.SignedAt != nil {
					signedAt = *s.SignedAt
				}
				fmt.Fprintf(out, "  %s (%s) %s %s\n", s.SignerName, s.SignerIIN, s.Status, signedAt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "id", "", "Document ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func documentsVerifyCmd() *cobra.Command {
	var documentID string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a document's checksum and provider signatures",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Verified      bool `json:"verified"`
				ChecksumMatch bool `json:"checksum_match"`
				SigexVerified bool `json:"sigex_verified"`
			}
			body, err := callAPI(cmd.Context(), http.MethodPost, "/api/documents/"+documentID+"/verify", nil, http.StatusOK, &result)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "verified=%t checksum_match=%t sigex_verified=%t\n",
				result.Verified, result.ChecksumMatch, result.SigexVerified)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "id", "", "Document ID (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}
