package cryptox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// pepperLength is the number of random bytes in a generated pepper. BLAKE2b
// accepts keys up to 64 bytes.
const pepperLength = 32

// ErrPepperInvalid is returned when a pepper file cannot be decoded.
var ErrPepperInvalid = errors.New("cryptox: invalid pepper")

// Pepper is a server-side secret mixed into stored code fingerprints so a
// leaked verification_codes table cannot be brute forced offline without it.
type Pepper []byte

// LoadOrCreatePepper reads the pepper stored at path, generating and
// persisting a new one (mode 0600) when the file does not exist.
func LoadOrCreatePepper(path string) (Pepper, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		secret, genErr := GenerateSecret(pepperLength)
		if genErr != nil {
			return nil, genErr
		}
		encoded := base64.RawURLEncoding.EncodeToString(secret)
		if err := os.WriteFile(path, []byte(encoded), 0600); err != nil {
			return nil, err
		}
		return Pepper(secret), nil
	}
	if err != nil {
		return nil, err
	}

	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPepperInvalid, err)
	}
	if len(decoded) == 0 || len(decoded) > blake2b.Size {
		return nil, fmt.Errorf("%w: length %d", ErrPepperInvalid, len(decoded))
	}
	return Pepper(decoded), nil
}

// FingerprintCode returns the keyed BLAKE2b-256 digest of code as base64url.
// The same code and pepper always produce the same fingerprint, so stores can
// look codes up by it.
func (p Pepper) FingerprintCode(code string) string {
	h, err := blake2b.New256(p)
	if err != nil {
		// Only possible for keys over 64 bytes, which LoadOrCreatePepper rejects.
		panic(fmt.Sprintf("cryptox: blake2b key: %v", err))
	}
	_, _ = h.Write([]byte(code))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
