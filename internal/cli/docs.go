package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type documentItem struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	ContentLength int    `json:"content_length"`
	ChunkCount    int    `json:"chunk_count"`
	CreatedAt     string `json:"created_at"`
}

type documentList struct {
	Documents []documentItem `json:"documents"`
}

// DocsCmd creates the docs command group.
func DocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage ingested documents",
	}

	cmd.AddCommand(docsListCmd())
	cmd.AddCommand(docsDeleteCmd())

	return cmd
}

func docsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			client, err := NewAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.Get("/documents")
			if err != nil {
				return err
			}

			var out documentList
			if err := json.Unmarshal(resp.Data, &out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(out)
			}

			if len(out.Documents) == 0 {
				fmt.Println("No documents.")
				return nil
			}
			for _, doc := range out.Documents {
				fmt.Printf("%s  %s  (%d chunks, %d chars)\n", doc.ID, doc.Filename, doc.ChunkCount, doc.ContentLength)
			}
			return nil
		},
	}
}

func docsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := NewAPIClient()
			if err != nil {
				return err
			}

			if _, err := client.Delete("/documents/" + args[0]); err != nil {
				return err
			}

			fmt.Printf("Deleted document %s\n", args[0])
			return nil
		},
	}
}
