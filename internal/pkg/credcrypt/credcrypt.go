// Package credcrypt encrypts and decrypts stored game-account credentials.
//
// Key version "v1" is the OpenSSL passphrase format written by CryptoJS.AES
// (base64 of "Salted__" | salt | AES-256-CBC ciphertext, key and IV from
// EVP_BytesToKey with MD5). Version "v2" is XChaCha20-Poly1305 under a key
// derived from the secret with HKDF-SHA256.
package credcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	KeyV1 = "v1"
	KeyV2 = "v2"

	// CurrentKey is the version new ciphertexts are written with.
	CurrentKey = KeyV2
)

var (
	ErrNoSecret              = errors.New("credential secret not configured")
	ErrUnsupportedKeyVersion = errors.New("unsupported key version")
	ErrMalformed             = errors.New("malformed ciphertext")
	ErrWrongSecret           = errors.New("ciphertext does not decrypt under this secret")
	ErrEmptyPlaintext        = errors.New("decrypted plaintext is empty")
)

var saltedMagic = []byte("Salted__")

const v2Info = "shopacc credential v2"

// Cipher holds the shared secret. The zero value rejects every call with
// ErrNoSecret.
type Cipher struct {
	secret []byte
	v2Key  []byte
}

func New(secret string) (*Cipher, error) {
	c := &Cipher{secret: []byte(secret)}
	if secret == "" {
		return c, nil
	}
	c.v2Key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.secret, nil, []byte(v2Info)), c.v2Key); err != nil {
		return nil, fmt.Errorf("derive v2 key: %w", err)
	}
	return c, nil
}

// Decrypt returns the plaintext of ciphertext written under keyID. An empty
// plaintext is an error: a credential is never blank.
func (c *Cipher) Decrypt(ciphertext, keyID string) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNoSecret
	}
	var (
		pt  []byte
		err error
	)
	switch keyID {
	case KeyV1:
		pt, err = c.decryptV1(ciphertext)
	case KeyV2:
		pt, err = c.decryptV2(ciphertext)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKeyVersion, keyID)
	}
	if err != nil {
		return "", err
	}
	if len(pt) == 0 {
		return "", ErrEmptyPlaintext
	}
	if !utf8.Valid(pt) {
		return "", ErrWrongSecret
	}
	return string(pt), nil
}

// Encrypt writes plaintext under keyID.
func (c *Cipher) Encrypt(plaintext, keyID string) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNoSecret
	}
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}
	switch keyID {
	case KeyV1:
		return c.encryptV1([]byte(plaintext))
	case KeyV2:
		return c.encryptV2([]byte(plaintext))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedKeyVersion, keyID)
	}
}

func (c *Cipher) decryptV1(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < 16 || !bytes.Equal(raw[:8], saltedMagic) {
		return nil, fmt.Errorf("%w: missing salt header", ErrMalformed)
	}
	salt, ct := raw[8:16], raw[16:]
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: bad block length", ErrMalformed)
	}
	key, iv := evpBytesToKey(c.secret, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	return pkcs7Unpad(pt)
}

func (c *Cipher) encryptV1(plaintext []byte) (string, error) {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key, iv := evpBytesToKey(c.secret, salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	out := make([]byte, 0, 16+len(ct))
	out = append(out, saltedMagic...)
	out = append(out, salt...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Cipher) decryptV2(ciphertext string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	aead, err := chacha20poly1305.NewX(c.v2Key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("%w: too short", ErrMalformed)
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, sealed, []byte(KeyV2))
	if err != nil {
		return nil, ErrWrongSecret
	}
	return pt, nil
}

func (c *Cipher) encryptV2(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.v2Key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(aead.Seal(nonce, nonce, plaintext, []byte(KeyV2))), nil
}

// evpBytesToKey is OpenSSL's EVP_BytesToKey with MD5 and one iteration.
func evpBytesToKey(pass, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var d, prev []byte
	for len(d) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(pass)
		h.Write(salt)
		prev = h.Sum(nil)
		d = append(d, prev...)
	}
	return d[:keyLen], d[keyLen : keyLen+ivLen]
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrWrongSecret
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrWrongSecret
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrWrongSecret
		}
	}
	return b[:len(b)-n], nil
}
