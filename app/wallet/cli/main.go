// This program provides a wallet for managing keys and talking to a node.
package main

import "github.com/ardanlabs/qchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
