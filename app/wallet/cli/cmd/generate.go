package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var algorithm string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	RunE:  generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&algorithm, "algorithm", "g", signature.Dilithium2, "Signature algorithm for the key.")
}

func generateRun(cmd *cobra.Command, args []string) error {
	path := getKeyPath()

	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("key file %s already exists", path)
	}

	signer, err := signature.New(algorithm)
	if err != nil {
		return err
	}

	if err := signer.Save(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, signer.Fingerprint())
	return nil
}
