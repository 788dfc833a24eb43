package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

type ingestRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a text file",
		Long:  "Reads a text file and uploads it to the docsage server for chunking and indexing.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runIngest(args[0], filename, outputJSON)
		},
	}

	cmd.Flags().StringVar(&filename, "name", "", "Override the stored filename (defaults to the file's base name)")

	return cmd
}

func runIngest(path, name string, outputJSON bool) error {
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	if name == "" {
		name = filepath.Base(path)
	}

	client, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.Post("/documents", ingestRequest{
		Filename: name,
		Text:     string(text),
	})
	if err != nil {
		return err
	}

	var out ingestResponse
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Printf("Ingested %s: document %s, %d chunks\n", out.Filename, out.DocumentID, out.ChunkCount)
	return nil
}
