// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/observability"
	"github.com/usergate/usergate/internal/server"
)

// verifyNoLeaks checks, after every other cleanup of the test has run,
// that the test left no goroutines behind.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	existing := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, existing) })
}

func TestServer_AddrEmptyBeforeRun(t *testing.T) {
	srv := server.NewServer("127.0.0.1:0", nil, nil)
	assert.Empty(t, srv.Addr())
}

func TestServer_ListenFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = occupied.Close() }()

	srv := server.NewServer(occupied.Addr().String(), nil, nil)
	err = srv.Run(context.Background())
	require.Error(t, err)
}

func TestServer_LoginAndShowUsers(t *testing.T) {
	verifyNoLeaks(t)
	ts := startServer(t)
	client := ts.dial(t)

	resp, err := client.Do(action.Login.String(), "hannah", strongPassword)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	resp, err = client.Do(action.ShowUsers.String())
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	var profiles []account.Profile
	require.NoError(t, resp.Decode(&profiles))
	require.Len(t, profiles, 2)
	assert.Equal(t, "alice", profiles[0].Username)
	assert.Equal(t, "hannah", profiles[1].Username)
}

func TestServer_AcceptsNumericTags(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	resp, err := client.Do(action.Login.Code(), "alice", strongPassword)
	require.NoError(t, err)
	assert.True(t, resp.OK, resp.Error)
}

func TestServer_LabelAndCodeTagsShareOneSession(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	resp, err := client.Do(action.Login.String(), "alice", strongPassword)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	// "3" is ChangePhone, which a standard user may not perform.
	resp, err = client.Do("3", "hannah", "0711111111")
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, action.MsgPermissionDenied, resp.Error)

	resp, err = client.Do(action.ChangeOwnPhone.Code(), "0722222222")
	require.NoError(t, err)
	assert.True(t, resp.OK, resp.Error)

	acct, err := ts.store.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "0722222222", acct.Phone)
	hannah, err := ts.store.Get(context.Background(), "hannah")
	require.NoError(t, err)
	assert.NotEqual(t, "0711111111", hannah.Phone)
}

func TestServer_PolicyObjectIsNotATag(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	require.NoError(t, client.Send(access.ObjectLogin, "alice", strongPassword))
	_, err := client.Read()
	require.Error(t, err, "only labels and codes name an action")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.ConnectionsTotal.WithLabelValues(observability.CloseFatal)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_DeniedActionKeepsConnection(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	resp, err := client.Do(action.ShowUsers.String())
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, action.MsgPermissionDenied, resp.Error)

	denials := ts.audit.Denials()
	require.Len(t, denials, 1)
	assert.Equal(t, access.SubjectAnonymous.String(), denials[0].Subject)
	assert.Equal(t, access.ObjectShowUsers, denials[0].Object)

	resp, err = client.Do(action.Login.String(), "alice", strongPassword)
	require.NoError(t, err)
	assert.True(t, resp.OK, resp.Error)
}

func TestServer_ExitClosesConnection(t *testing.T) {
	verifyNoLeaks(t)
	ts := startServer(t)
	client := ts.dial(t)

	require.NoError(t, client.Send(action.Exit.String()))
	_, err := client.Read()
	require.Error(t, err, "exit sends no response and closes the connection")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.ConnectionsTotal.WithLabelValues(observability.CloseExit)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, testutil.ToFloat64(ts.metrics.ConnectionsActive))
}

func TestServer_UnknownTagDropsConnection(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	require.NoError(t, client.Send("launch_missiles"))
	_, err := client.Read()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.ConnectionsTotal.WithLabelValues(observability.CloseFatal)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_MalformedPayloadDropsConnection(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	require.NoError(t, client.Send(action.Login.String(), 42))
	_, err := client.Read()
	require.Error(t, err, "protocol errors send no response")

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.ConnectionsTotal.WithLabelValues(observability.CloseFatal)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_ClientDisconnect(t *testing.T) {
	ts := startServer(t)
	client := ts.dial(t)

	resp, err := client.Do(action.Login.String(), "alice", strongPassword)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)
	require.NoError(t, client.Close())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.ConnectionsTotal.WithLabelValues(observability.CloseDisconnect)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_SessionsAreIndependent(t *testing.T) {
	ts := startServer(t)
	hr := ts.dial(t)
	anon := ts.dial(t)

	resp, err := hr.Do(action.Login.String(), "hannah", strongPassword)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	resp, err = anon.Do(action.ShowUsers.String())
	require.NoError(t, err)
	assert.False(t, resp.OK, "another connection's login must not authorize this one")
}

func TestServer_IdleTimeoutDropsConnection(t *testing.T) {
	ts := startServer(t, server.WithIdleTimeout(50*time.Millisecond))
	client := ts.dial(t)

	_, err := client.Read()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(ts.metrics.ConnectionsTotal.WithLabelValues(observability.CloseDisconnect)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_ShutdownClosesOpenConnections(t *testing.T) {
	verifyNoLeaks(t)
	ts := startServer(t)
	client := ts.dial(t)

	resp, err := client.Do(action.Login.String(), "alice", strongPassword)
	require.NoError(t, err)
	require.True(t, resp.OK, resp.Error)

	ts.cancel()
	select {
	case <-ts.done:
		require.NoError(t, ts.runErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	_, err = client.Read()
	require.Error(t, err)
	assert.Zero(t, testutil.ToFloat64(ts.metrics.ConnectionsActive))
}
