package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/rangehawk/internal/answerkey"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Answer key utilities",
	Long: `Seal answer keys before handing datasets to trainees, and open them
again for review. Sealed keys are encrypted with a passphrase-derived key.`,
}

var keysSealCmd = &cobra.Command{
	Use:   "seal <answer_key.json>",
	Short: "Encrypt an answer key file",
	Long: `Encrypt an answer key. The sealed file is written next to the input
with a .sealed extension unless --out is given.

Examples:
  rangehawk keys seal ./datasets/evaluation/answer_key.json --passphrase s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pass := passphrase(cmd)
		if pass == "" {
			return errors.New("a passphrase is required (--passphrase or keys.passphrase)")
		}

		key, err := answerkey.ReadFile(args[0], "")
		if err != nil {
			return err
		}
		data, err := answerkey.Seal(key, pass)
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = strings.TrimSuffix(args[0], ".json") + ".sealed"
		}
		if err := os.WriteFile(out, data, 0600); err != nil {
			return fmt.Errorf("failed to write sealed key: %w", err)
		}

		if remove, _ := cmd.Flags().GetBool("remove"); remove {
			if err := os.Remove(args[0]); err != nil {
				return fmt.Errorf("failed to remove plaintext key: %w", err)
			}
		}

		return printer.Render(map[string]any{"sealed": out, "facts": key.Len()}, func(w io.Writer) {
			printer.Success("Sealed %d facts to %s", key.Len(), out)
		})
	},
}

var keysOpenCmd = &cobra.Command{
	Use:   "open <answer_key.sealed>",
	Short: "Decrypt and print an answer key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := answerkey.ReadFile(args[0], passphrase(cmd))
		if err != nil {
			return err
		}

		data, err := key.MarshalIndent()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysSealCmd, keysOpenCmd)

	keysCmd.PersistentFlags().String("passphrase", "", "passphrase (default: keys.passphrase)")
	keysSealCmd.Flags().String("out", "", "sealed output file")
	keysSealCmd.Flags().Bool("remove", false, "delete the plaintext key after sealing")
}
