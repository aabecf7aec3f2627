package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

var mineCmd = &cobra.Command{
	Use:       "mine on|off",
	Short:     "Turn mining on the node on or off.",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE:      mineRun,
}

var mineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the mining status of the node.",
	Args:  cobra.NoArgs,
	RunE:  mineStatusRun,
}

func init() {
	rootCmd.AddCommand(mineCmd)
	mineCmd.AddCommand(mineStatusCmd)
}

func mineRun(cmd *cobra.Command, args []string) error {
	req := struct {
		Enabled bool `json:"enabled"`
	}{
		Enabled: args[0] == "on",
	}

	var resp json.RawMessage
	if err := call(http.MethodPost, "/v1/mining/toggle", req, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}

func mineStatusRun(cmd *cobra.Command, args []string) error {
	var resp json.RawMessage
	if err := call(http.MethodGet, "/v1/mining/status", nil, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}
