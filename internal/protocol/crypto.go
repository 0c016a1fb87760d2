package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/cantrip-vcs/minigit/internal/vcserr"
	"golang.org/x/crypto/pbkdf2"
)

// deriveKeyIV turns a shared password into an AES-256 key and IV
// deterministically, so both peers reach the same envelope without
// exchanging a nonce first. The salt itself is derived from the
// password so no separate salt negotiation is required either.
//
//	salt = SHA-256(password || "salt")[:16]
//	key  = PBKDF2(password, salt, 10000, 32, SHA-256)
//	iv   = PBKDF2(password, salt, 1000, 16, SHA-256)
func deriveKeyIV(password string) (key, iv []byte) {
	saltFull := sha256.Sum256([]byte(password + "salt"))
	salt := saltFull[:16]
	key = pbkdf2.Key([]byte(password), salt, 10000, 32, sha256.New)
	iv = pbkdf2.Key([]byte(password), salt, 1000, 16, sha256.New)
	return key, iv
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, vcserr.New(vcserr.KindIntegrity, "ciphertext is not a multiple of the block size")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, vcserr.New(vcserr.KindIntegrity, "invalid PKCS#7 padding")
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, vcserr.New(vcserr.KindIntegrity, "invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-padLen], nil
}

// Encrypt wraps plaintext in an AES-256-CBC envelope keyed on password.
// The IV is deterministic (see deriveKeyIV) rather than random, so the
// same plaintext+password always yields the same ciphertext; this keeps
// both engine implementations trivially interoperable at the cost of
// leaking repeated-plaintext equality across frames.
func Encrypt(password string, plaintext []byte) ([]byte, error) {
	key, iv := deriveKeyIV(password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.KindIntegrity, "aes cipher init failed", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt.
func Decrypt(password string, ciphertext []byte) ([]byte, error) {
	key, iv := deriveKeyIV(password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.KindIntegrity, "aes cipher init failed", err)
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, vcserr.New(vcserr.KindIntegrity, fmt.Sprintf("ciphertext length %d not a multiple of block size", len(ciphertext)))
	}
	padded := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, iv)
	mode.CryptBlocks(padded, ciphertext)
	return pkcs7Unpad(padded, aes.BlockSize)
}

// randomSessionID returns a fresh random 32-byte session identifier.
// Nothing in this module calls it: the server's AUTH_RESPONSE carries
// the id assigned by the session registry.
func randomSessionID() ([32]byte, error) {
	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, vcserr.Wrap(vcserr.KindIntegrity, "failed to generate session id", err)
	}
	return id, nil
}
