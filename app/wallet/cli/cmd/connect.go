package cmd

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect <host:port>",
	Short: "Connect the node to a peer using the peer's private host.",
	Args:  cobra.ExactArgs(1),
	RunE:  connectRun,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func connectRun(cmd *cobra.Command, args []string) error {
	req := struct {
		Host string `json:"host"`
	}{
		Host: args[0],
	}

	var resp json.RawMessage
	if err := call(http.MethodPost, "/v1/peers/connect", req, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}
