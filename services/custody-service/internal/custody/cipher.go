package custody

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLength       = 16
	ivLength         = aes.BlockSize
	keyLength        = 32 // AES-256
	pbkdf2Iterations = 100_000
)

var errPadding = errors.New("invalid padding")

// sealed is the hex-encoded output of encrypt
type sealed struct {
	ciphertext string
	salt       string
	iv         string
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)
}

func randomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

// encrypt seals plaintext with AES-256-CBC under a PBKDF2 key from a fresh salt and IV
func encrypt(r io.Reader, plaintext []byte, password string) (*sealed, error) {
	if r == nil {
		r = rand.Reader
	}
	salt, err := randomBytes(r, saltLength)
	if err != nil {
		return nil, err
	}
	iv, err := randomBytes(r, ivLength)
	if err != nil {
		return nil, err
	}

	key := deriveKey(password, salt)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer zero(padded)

	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)

	return &sealed{
		ciphertext: hex.EncodeToString(out),
		salt:       hex.EncodeToString(salt),
		iv:         hex.EncodeToString(iv),
	}, nil
}

// decrypt reverses encrypt. The caller must zero the returned slice.
func decrypt(s *sealed, password string) ([]byte, error) {
	ct, err := hex.DecodeString(s.ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	salt, err := hex.DecodeString(s.salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := hex.DecodeString(s.iv)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	if len(iv) != ivLength {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", ivLength, len(iv))
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ct))
	}

	key := deriveKey(password, salt)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)

	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		zero(out)
		return nil, err
	}
	return plain, nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, errPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errPadding
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errPadding
		}
	}
	return b[:len(b)-n], nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
