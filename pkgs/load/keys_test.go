package load_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ssvlabs/eth-tss/pkgs/load"
	"github.com/ssvlabs/eth-tss/pkgs/tss"
	"github.com/ssvlabs/eth-tss/pkgs/wire"
)

func testKeyShare(t *testing.T) *wire.KeyShare {
	shares, err := tss.LocalKeygen(context.Background(), 2, 1, 30)
	require.NoError(t, err)
	return shares[1]
}

func requireSameShare(t *testing.T, expected, actual *wire.KeyShare) {
	require.Equal(t, expected.Index, actual.Index)
	require.Equal(t, expected.Scheme, actual.Scheme)
	require.True(t, expected.PublicKey.Equal(actual.PublicKey))
	require.True(t, expected.Share.Equals(actual.Share))
}

func TestPlainKeyShareFile(t *testing.T) {
	ks := testKeyShare(t)
	dir := t.TempDir()
	path, err := load.WriteKeyShare(dir, ks, "")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "key_share-2.json"), path)

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())

	read, err := load.KeyShare(path, "")
	require.NoError(t, err)
	requireSameShare(t, ks, read)
}

func TestEncryptedKeyShareFile(t *testing.T) {
	ks := testKeyShare(t)
	dir := t.TempDir()
	path, err := load.WriteKeyShare(dir, ks, "correct horse")
	require.NoError(t, err)

	_, err = load.KeyShare(path, "")
	require.Error(t, err)
	_, err = load.KeyShare(path, "wrong")
	require.Error(t, err)

	read, err := load.KeyShare(path, "correct horse")
	require.NoError(t, err)
	requireSameShare(t, ks, read)
}

func TestPassword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "password")
	require.NoError(t, os.WriteFile(path, []byte("secret\n"), 0o600))
	password, err := load.Password(path)
	require.NoError(t, err)
	require.Equal(t, "secret", password)

	password, err = load.Password("")
	require.NoError(t, err)
	require.Empty(t, password)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = load.Password(empty)
	require.Error(t, err)

	_, err = load.Password(filepath.Join(dir, "missing"))
	require.Error(t, err)
}

func TestEncryptRequiresPassword(t *testing.T) {
	_, err := load.EncryptKeyShare(testKeyShare(t), " ")
	require.Error(t, err)
}

func TestInvalidKeyShareFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"1.0.0"}`), 0o600))
	_, err := load.KeyShare(path, "")
	require.Error(t, err)
	_, err = load.KeyShare(filepath.Join(dir, "missing.json"), "")
	require.Error(t, err)
}
