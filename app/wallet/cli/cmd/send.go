package cmd

import (
	"net/http"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account receiving the value.")
	sendCmd.Flags().StringVarP(&amount, "amount", "v", "", "Amount to send, up to 8 decimals.")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}

func sendRun(cmd *cobra.Command, args []string) error {
	signer, err := signature.Load(getKeyPath())
	if err != nil {
		return err
	}

	value, err := database.ParseAmount(amount)
	if err != nil {
		return err
	}

	tx, err := database.NewTx(signer, to, value)
	if err != nil {
		return err
	}

	var resp struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}
	if err := call(http.MethodPost, "/v1/tx/submit", tx, &resp); err != nil {
		return err
	}

	return printJSON(cmd.OutOrStdout(), resp)
}
