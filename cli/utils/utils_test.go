package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateDirIfNotExist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	require.NoError(t, CreateDirIfNotExist(dir))
	require.NoError(t, CreateDirIfNotExist(dir))
	stat, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, stat.IsDir())

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	require.Error(t, CreateDirIfNotExist(file))
	require.Error(t, CreateDirIfNotExist(""))
}

func TestWriteTable(t *testing.T) {
	out := new(bytes.Buffer)
	WriteTable(out, []string{"Field", "Value"}, []string{"address", "0x01"})
	require.Contains(t, out.String(), "address")
	require.Contains(t, out.String(), "0x01")
}
