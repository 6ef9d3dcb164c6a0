// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package action_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/action"
)

func TestCollectors_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range action.Collectors() {
		require.NoError(t, reg.Register(c))
	}
}

func TestPerform_RecordsRequestMetrics(t *testing.T) {
	f := newFixture(t)
	denied := action.RequestsTotal.WithLabelValues(access.ObjectShowUsers, action.OutcomeDenied)
	succeeded := action.RequestsTotal.WithLabelValues(access.ObjectLogin, action.OutcomeSuccess)
	deniedBefore := testutil.ToFloat64(denied)
	succeededBefore := testutil.ToFloat64(succeeded)

	user, _ := f.session("")
	err := f.dispatcher.Perform(context.Background(), user, action.ShowUsers)
	require.Error(t, err)
	require.False(t, action.IsFatal(err))

	user, _ = f.session("", "alice", strongPassword)
	require.NoError(t, f.dispatcher.Perform(context.Background(), user, action.Login))

	assert.Equal(t, deniedBefore+1, testutil.ToFloat64(denied))
	assert.Equal(t, succeededBefore+1, testutil.ToFloat64(succeeded))
}
