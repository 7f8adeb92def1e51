package nilcomm

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// Keypair holds the node's curve25519 keys. Shares arrive as anonymous
// sealed boxes encrypted to the node's public key.
type Keypair struct {
	public  *[32]byte
	private *[32]byte
}

// ParseKeypair decodes a hex-encoded 32-byte public/private key pair.
func ParseKeypair(publicHex, privateHex string) (Keypair, error) {
	public, err := parseKey(publicHex)
	if err != nil {
		return Keypair{}, fmt.Errorf("invalid public key: %w", err)
	}
	private, err := parseKey(privateHex)
	if err != nil {
		return Keypair{}, fmt.Errorf("invalid private key: %w", err)
	}
	return Keypair{public: public, private: private}, nil
}

func parseKey(encoded string) (*[32]byte, error) {
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// Decrypt opens an anonymous sealed box addressed to the node.
func (k Keypair) Decrypt(ciphertext []byte) ([]byte, error) {
	plaintext, ok := box.OpenAnonymous(nil, ciphertext, k.public, k.private)
	if !ok {
		return nil, fmt.Errorf("sealed box could not be opened")
	}
	return plaintext, nil
}

// Seal encrypts a payload to a recipient public key. Used by tests and
// tooling; the node itself only decrypts.
func Seal(plaintext []byte, recipientPublicHex string) ([]byte, error) {
	recipient, err := parseKey(recipientPublicHex)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient key: %w", err)
	}
	return box.SealAnonymous(nil, plaintext, recipient, nil)
}
