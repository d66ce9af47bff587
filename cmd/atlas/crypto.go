package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/castleatlas/atlas/internal/crypto"
	"github.com/castleatlas/atlas/internal/models"
)

var encryptCmd = &cobra.Command{
	Use:   "encrypt [text]",
	Short: "Encrypt text with a password",
	Long: `Encrypt seals text into a base64 envelope (salt, nonce and AES-256-GCM
ciphertext) using a key derived from the password with PBKDF2-SHA256.
Text is read from stdin when omitted or "-".`,
	Example: `  atlas encrypt "meet at the keep" -p hunter2
  echo secret | atlas encrypt`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEncrypt,
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [envelope]",
	Short: "Decrypt an envelope produced by encrypt",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDecrypt,
}

var hashCmd = &cobra.Command{
	Use:   "hash [text]",
	Short: "Print the SHA-256 digest of text or a file",
	Example: `  atlas hash hello
  atlas hash --file backup.tar`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHash,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Generate a random hex token",
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a random key, or derive one from a password and salt",
	Args:  cobra.NoArgs,
	RunE:  runKeygen,
}

var compareCmd = &cobra.Command{
	Use:   "compare <a> <b>",
	Short: "Compare two secrets in constant time",
	Long: `Compare reports whether two values are equal without an early exit on the
first differing byte. It exits non-zero when they differ.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

var errValuesDiffer = errors.New("values differ")

var (
	cryptoPassword string
	hashFile       string
	randomBytes    int
	deriveSalt     string
	derive         bool
)

func init() {
	rootCmd.AddCommand(encryptCmd, decryptCmd, hashCmd, tokenCmd, keygenCmd, compareCmd)

	for _, cmd := range []*cobra.Command{encryptCmd, decryptCmd} {
		cmd.Flags().StringVarP(&cryptoPassword, "password", "p", "",
			"Password (will prompt if not provided)")
	}

	hashCmd.Flags().StringVarP(&hashFile, "file", "f", "",
		"Hash the contents of a file")

	tokenCmd.Flags().IntVarP(&randomBytes, "bytes", "n", crypto.DefaultTokenLength,
		"Number of random bytes")

	keygenCmd.Flags().IntVarP(&randomBytes, "bytes", "n", crypto.DefaultKeyLength,
		"Key length in bytes")
	keygenCmd.Flags().BoolVar(&derive, "derive", false,
		"Derive the key from a password instead of generating it")
	keygenCmd.Flags().StringVar(&deriveSalt, "salt", "",
		"Hex salt for --derive (random if empty)")
	keygenCmd.Flags().StringVarP(&cryptoPassword, "password", "p", "",
		"Password for --derive (will prompt if not provided)")
}

func runEncrypt(cmd *cobra.Command, args []string) error {
	text, err := inputArg(args)
	if err != nil {
		return err
	}

	password := cryptoPassword
	if password == "" {
		if password, err = promptNewPassword(); err != nil {
			return err
		}
	}

	util, err := newUtility()
	if err != nil {
		return err
	}

	envelope, err := util.EncryptContext(cmd.Context(), text, password)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "envelope": envelope})
		return nil
	}
	fmt.Fprintln(stdout, envelope)
	return nil
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	envelope, err := inputArg(args)
	if err != nil {
		return err
	}

	password := cryptoPassword
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	util, err := newUtility()
	if err != nil {
		return err
	}

	plaintext, err := util.DecryptContext(cmd.Context(), strings.TrimSpace(envelope), password)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "plaintext": plaintext})
		return nil
	}
	fmt.Fprintln(stdout, plaintext)
	return nil
}

func runHash(cmd *cobra.Command, args []string) error {
	var (
		digest string
		err    error
	)

	if hashFile != "" {
		f, openErr := os.Open(hashFile)
		if openErr != nil {
			return fmt.Errorf("open file: %w", openErr)
		}
		defer f.Close()

		digest, err = crypto.HashReader(f)
		if err != nil {
			return err
		}
	} else {
		text, inputErr := inputArg(args)
		if inputErr != nil {
			return inputErr
		}
		digest = crypto.Hash(text)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "sha256": digest})
		return nil
	}
	fmt.Fprintln(stdout, digest)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	token, err := crypto.GenerateToken(randomBytes)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "token": token})
		return nil
	}
	fmt.Fprintln(stdout, token)
	return nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	equal := crypto.SecureCompare(args[0], args[1])

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "equal": equal})
		return nil
	}
	if !equal {
		return errValuesDiffer
	}
	printSuccess("Values match")
	return nil
}

func runKeygen(cmd *cobra.Command, args []string) error {
	util, err := newUtility()
	if err != nil {
		return err
	}

	if !derive {
		key, err := util.GenerateKey(randomBytes)
		if err != nil {
			return err
		}
		return printKey(key, nil)
	}

	var salt []byte
	if deriveSalt != "" {
		if salt, err = hex.DecodeString(deriveSalt); err != nil {
			return fmt.Errorf("invalid salt: %w", err)
		}
	} else if salt, err = util.GenerateKey(crypto.SaltSize); err != nil {
		return err
	}

	password := cryptoPassword
	if password == "" {
		if password, err = promptPassword("Password: "); err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}

	key, err := util.DeriveKey(password, salt)
	if err != nil {
		return err
	}
	return printKey(key, salt)
}

func printKey(key, salt []byte) error {
	if jsonOutput {
		result := map[string]interface{}{"success": true, "key": hex.EncodeToString(key)}
		if salt != nil {
			result["salt"] = hex.EncodeToString(salt)
		}
		printJSON(result)
		return nil
	}

	if salt == nil {
		fmt.Fprintln(stdout, hex.EncodeToString(key))
		return nil
	}
	printField("Salt", hex.EncodeToString(salt))
	printField("Key", hex.EncodeToString(key))
	return nil
}

// inputArg returns the single argument, or stdin when it is absent or "-".
func inputArg(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

var stdin io.Reader = os.Stdin

func promptPassword(prompt string) (string, error) {
	fmt.Fprint(stderr, prompt)

	// Read password without echo
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(stderr) // New line after password

	if err != nil {
		return "", err
	}

	return string(password), nil
}

// promptNewPassword asks twice and rejects a mismatch.
func promptNewPassword() (string, error) {
	password, err := promptPassword("Password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if password == "" {
		return "", &models.ValidationError{Field: "password", Reason: models.MsgRequiredField, Err: models.ErrRequiredField}
	}

	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if password != confirm {
		return "", errors.New(models.MsgPasswordsMismatch)
	}

	return password, nil
}
