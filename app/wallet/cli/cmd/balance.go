package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [account]",
	Short: "Print the balance of the wallet or the specified account.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	var account string
	switch len(args) {
	case 1:
		account = args[0]
	default:
		signer, err := signature.Load(getKeyPath())
		if err != nil {
			return err
		}
		account = signer.Fingerprint()
	}

	var resp json.RawMessage
	if err := call(http.MethodGet, fmt.Sprintf("/v1/balances/list/%s", account), nil, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}
