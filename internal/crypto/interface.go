package crypto

// Cipher is the envelope half of Utility. Stores and services depend on this
// rather than on *Utility so tests can substitute it.
type Cipher interface {
	// Encrypt seals plaintext under password into a base64 envelope.
	Encrypt(plaintext, password string) (string, error)

	// Decrypt opens an envelope produced by Encrypt.
	Decrypt(envelope, password string) (string, error)
}

// Provider is the full set of operations offered by Utility.
type Provider interface {
	Cipher

	DeriveKey(password string, salt []byte) ([]byte, error)
	GenerateKey(n int) ([]byte, error)
	GenerateToken(n int) (string, error)
	Hash(data string) string
}

var _ Provider = (*Utility)(nil)
