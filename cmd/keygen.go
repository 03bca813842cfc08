package cmd

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

// keygenCmd mints a fresh relay auth key. The relay tracks reputation by the
// signing address, so each deployment should use its own key, separate from
// the wallet key.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new relay signing key",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		fmt.Printf("Private Key: 0x%x\n", crypto.FromECDSA(privateKey))
		fmt.Printf("Public Address: %s\n", crypto.PubkeyToAddress(privateKey.PublicKey).Hex())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
