package test_utils

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ssvlabs/eth-tss/pkgs/logging"
	"github.com/ssvlabs/eth-tss/pkgs/relay"
)

type TestRelay struct {
	Srv     *relay.Server
	HttpSrv *httptest.Server
	Client  *relay.Client
}

// CreateTestRelay starts a relay on an httptest server and returns a client connected to it.
func CreateTestRelay(t *testing.T) *TestRelay {
	err := logging.SetGlobalLogger("info", "capital", "console", nil)
	require.NoError(t, err)
	logger := zap.L().Named("relay-tests")
	s := relay.New(logger)
	sTest := httptest.NewServer(s.Router)
	t.Cleanup(sTest.Close)
	client, err := relay.NewClient(sTest.URL, logger)
	require.NoError(t, err)
	require.NoError(t, client.Health(context.Background()))
	return &TestRelay{
		Srv:     s,
		HttpSrv: sTest,
		Client:  client,
	}
}
