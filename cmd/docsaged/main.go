package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docsage/docsage/internal/cli"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "docsaged",
		Short: "DocSage - retrieval-augmented question answering over your documents",
		Long: `DocSage ingests text documents, indexes their embeddings and answers
questions grounded in the retrieved content.

Server environment variables use the DOCSAGE_ prefix.
Client commands (ingest, query, docs) use:
  DOCSAGE_API_KEY   API key for authentication (required)
  DOCSAGE_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.IngestCmd())
	rootCmd.AddCommand(cli.QueryCmd())
	rootCmd.AddCommand(cli.DocsCmd())

	cli.CheckHelpJSON(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
