package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type querySource struct {
	Citation string `json:"citation"`
}

type queryResponse struct {
	Answer  string        `json:"answer"`
	Phase   string        `json:"phase,omitempty"`
	Trace   []string      `json:"trace,omitempty"`
	Sources []querySource `json:"sources"`
}

// QueryCmd creates the query command.
func QueryCmd() *cobra.Command {
	var (
		k     int
		agent bool
		trace bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over ingested documents",
		Long:  "Sends a question to the docsage server and prints the grounded answer with citations.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runQuery(args[0], k, agent, trace, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&k, "k", "n", 0, "Number of chunks to retrieve (default: server policy)")
	cmd.Flags().BoolVar(&agent, "agent", false, "Use the reasoning agent with a sufficiency check")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print the agent's reasoning trace (implies --agent)")

	return cmd
}

func runQuery(question string, k int, agent, trace, outputJSON bool) error {
	client, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := "/query"
	if agent || trace {
		path = "/query/agent"
	}

	resp, err := client.Post(path, queryRequest{Question: question, K: k})
	if err != nil {
		return err
	}

	var out queryResponse
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	fmt.Println(out.Answer)

	if trace && len(out.Trace) > 0 {
		fmt.Println("\nTrace:")
		for _, step := range out.Trace {
			fmt.Printf("  %s\n", step)
		}
	}

	if len(out.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range out.Sources {
			fmt.Printf("  %s\n", src.Citation)
		}
	}

	return nil
}
