package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koscakluka/stella-core/core/backend"
)

var schemaCmd = &cobra.Command{
	Use:   "schema [name]",
	Short: "Print JSON Schemas of the backend wire messages",
	Long: `Schema prints the JSON Schema of the utterance request sent to the
backend and of the speech output received over the realtime channel.

Pass a name to print a single schema.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	schemas := backend.Schemas()

	var output any = schemas
	if len(args) == 1 {
		schema, ok := schemas[args[0]]
		if !ok {
			names := make([]string, 0, len(schemas))
			for name := range schemas {
				names = append(names, name)
			}
			slices.Sort(names)
			return fmt.Errorf("unknown schema %q, expected one of %s", args[0], strings.Join(names, ", "))
		}
		output = schema
	}

	encoded, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
	return err
}
