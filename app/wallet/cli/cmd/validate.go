package cmd

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Ask the node to validate every block in its chain.",
	Args:  cobra.NoArgs,
	RunE:  validateRun,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateRun(cmd *cobra.Command, args []string) error {
	var resp struct {
		Valid  bool   `json:"valid"`
		Length int    `json:"length"`
		Error  string `json:"error"`
	}
	if err := call(http.MethodGet, "/v1/chain/validate", nil, &resp); err != nil {
		return err
	}

	if !resp.Valid {
		return errors.New(resp.Error)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "chain valid: blocks[%d]\n", resp.Length)
	return nil
}
