// Package load reads and writes key share files. A file holds either the plain key share
// JSON or, when a password is used, a keystorev4 envelope around it.
package load

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	keystorev4 "github.com/wealdtech/go-eth2-wallet-encryptor-keystorev4"

	"github.com/ssvlabs/eth-tss/pkgs/utils"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

// KeyShareFileName is the name under which the share of index is written.
func KeyShareFileName(index uint16) string {
	return fmt.Sprintf("key_share-%d.json", index)
}

// Password reads a password file, dropping the trailing line break.
func Password(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", errors.Wrap(err, "failed to read password file")
	}
	password := strings.TrimRight(string(data), "\r\n")
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password file is empty")
	}
	return password, nil
}

// EncryptKeyShare returns the keystorev4 JSON envelope of the key share.
func EncryptKeyShare(ks *wire.KeyShare, password string) ([]byte, error) {
	if strings.TrimSpace(password) == "" {
		return nil, errors.New("password required to encrypt a key share")
	}
	plain, err := json.Marshal(ks)
	if err != nil {
		return nil, err
	}
	encrypted, err := keystorev4.New().Encrypt(plain, password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encrypt key share")
	}
	return json.Marshal(encrypted)
}

// DecryptKeyShare opens a keystorev4 envelope produced by EncryptKeyShare.
func DecryptKeyShare(data []byte, password string) (*wire.KeyShare, error) {
	var envelope map[string]interface{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, errors.Wrap(err, "parse JSON data")
	}
	plain, err := keystorev4.New().Decrypt(envelope, password)
	if err != nil {
		return nil, errors.Wrap(err, "decrypt key share")
	}
	ks := &wire.KeyShare{}
	if err := json.Unmarshal(plain, ks); err != nil {
		return nil, errors.Wrap(err, "failed to parse key share")
	}
	if err := ks.Validate(); err != nil {
		return nil, err
	}
	return ks, nil
}

// KeyShare reads a key share file. An empty password means the file is plain JSON.
func KeyShare(path, password string) (*wire.KeyShare, error) {
	if password == "" {
		ks := &wire.KeyShare{}
		if err := utils.ReadJSON(path, ks); err != nil {
			return nil, errors.Wrap(err, "failed to read key share file")
		}
		if err := ks.Validate(); err != nil {
			return nil, err
		}
		return ks, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key share file")
	}
	return DecryptKeyShare(data, password)
}

// WriteKeyShare writes the key share into dir and returns the file path.
func WriteKeyShare(dir string, ks *wire.KeyShare, password string) (string, error) {
	path := filepath.Join(dir, KeyShareFileName(ks.Index))
	if password == "" {
		if err := utils.WriteJSON(path, ks); err != nil {
			return "", errors.Wrap(err, "failed to write key share file")
		}
		return path, nil
	}
	data, err := EncryptKeyShare(ks, password)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", errors.Wrap(err, "failed to write key share file")
	}
	return path, nil
}
