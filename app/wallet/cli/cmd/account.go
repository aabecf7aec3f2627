package cmd

import (
	"fmt"

	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account fingerprint and signature algorithm of the wallet key",
	RunE:  accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) error {
	signer, err := signature.Load(getKeyPath())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", signer.Fingerprint(), signer.Algorithm())
	return nil
}
