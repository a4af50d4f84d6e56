package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/kriptapay/payout-engine/internal/config"
)

// Fixed salt for the legacy "iv:ciphertext" blob format, kept only so keys
// encrypted before salts were introduced still decrypt.
var legacySalt = []byte("kriptapay-legacy-static-salt-v1")

const (
	scryptN    = 1 << 15
	scryptR    = 8
	scryptP    = 1
	keyLen     = 32
	minKeyPass = 32
)

// decryptKeyBlob decrypts the chain row's signing_key_blob using password as
// the KDF passphrase. Blob format is "salt:iv:ciphertext" (new) or
// "iv:ciphertext" (legacy, fixed salt) per §4.2. The decrypted plaintext may
// itself be an "ENV:<NAME>" indirection, resolved by the caller.
func decryptKeyBlob(blob, password string) (string, error) {
	if len(password) < minKeyPass {
		return "", fmt.Errorf("key password must be at least %d characters", minKeyPass)
	}

	parts := strings.Split(blob, ":")
	var salt, iv, ciphertext []byte
	var err error

	switch len(parts) {
	case 3:
		salt, err = hex.DecodeString(parts[0])
		if err != nil {
			return "", fmt.Errorf("decode salt: %w", err)
		}
		iv, err = hex.DecodeString(parts[1])
		if err != nil {
			return "", fmt.Errorf("decode iv: %w", err)
		}
		ciphertext, err = hex.DecodeString(parts[2])
		if err != nil {
			return "", fmt.Errorf("decode ciphertext: %w", err)
		}
	case 2:
		salt = legacySalt
		iv, err = hex.DecodeString(parts[0])
		if err != nil {
			return "", fmt.Errorf("decode iv: %w", err)
		}
		ciphertext, err = hex.DecodeString(parts[1])
		if err != nil {
			return "", fmt.Errorf("decode ciphertext: %w", err)
		}
	default:
		return "", errors.New("malformed key blob: expected salt:iv:ciphertext or iv:ciphertext")
	}

	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	if len(ciphertext)%aes.BlockSize != 0 || len(ciphertext) == 0 {
		return "", errors.New("ciphertext is not a multiple of the block size")
	}
	if len(iv) != aes.BlockSize {
		return "", errors.New("iv has wrong length")
	}

	mode := cipher.NewCBCDecrypter(block, iv)
	plain := make([]byte, len(ciphertext))
	mode.CryptBlocks(plain, ciphertext)

	plain, err = unpadPKCS7(plain)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptKeyBlob produces a new-format "salt:iv:ciphertext" blob, used by
// provisioning tooling when onboarding a new chain's signing key.
func EncryptKeyBlob(plaintext, password string) (string, error) {
	if len(password) < minKeyPass {
		return "", fmt.Errorf("key password must be at least %d characters", minKeyPass)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return "", err
	}

	padded := padPKCS7([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(iv),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(data, padding...)
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("invalid padding")
	}
	return data[:len(data)-padLen], nil
}

// resolveSigningKey decrypts a chain's key blob and resolves any ENV:<NAME>
// indirection to the raw hex private key material.
func resolveSigningKey(blob, password string) (string, error) {
	decrypted, err := decryptKeyBlob(blob, password)
	if err != nil {
		return "", err
	}
	return config.ResolveChainKeyMaterial(decrypted)
}
