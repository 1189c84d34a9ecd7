package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHexToBytes(t *testing.T) {
	b, err := HexToBytes("0x0102ff")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0xff}, b)

	b, err = HexToBytes("0102FF")
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0xff}, b)

	_, err = HexToBytes("0x123")
	require.Error(t, err)
	_, err = HexToBytes("zz")
	require.Error(t, err)
}

func TestJSONFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	in := map[string]int{"a": 1}
	require.NoError(t, WriteJSON(path, in))
	out := map[string]int{}
	require.NoError(t, ReadJSON(path, &out))
	require.Equal(t, in, out)
	require.Error(t, ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out))
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(zap.NewNop(), rec, errors.New("bad request"), http.StatusBadRequest)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"error":"bad request"}`, rec.Body.String())
}
