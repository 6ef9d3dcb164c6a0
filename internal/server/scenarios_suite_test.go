// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package server_test

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/access/audit"
	"github.com/usergate/usergate/internal/access/audit/audittest"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
	"github.com/usergate/usergate/internal/auth"
	"github.com/usergate/usergate/internal/protocol"
	"github.com/usergate/usergate/internal/server"
)

func TestScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "usergate End-to-End Scenarios")
}

// scenarioEnv is a server on the real Argon2 hasher and the embedded casbin
// policy, seeded with the default accounts.
type scenarioEnv struct {
	store  *account.MemoryStore
	audit  *audittest.Recorder
	logger *audit.Logger
	srv    *server.Server
	cancel context.CancelFunc
	done   chan struct{}
}

var env *scenarioEnv

var _ = BeforeSuite(func() {
	ctx := context.Background()
	store := account.NewMemoryStore()
	hasher := auth.NewArgon2idHasher()

	created, err := account.Seed(ctx, store, hasher, account.DefaultSeed())
	Expect(err).NotTo(HaveOccurred())
	Expect(created).To(Equal(2))

	evaluator, err := access.NewCasbinEvaluator("")
	Expect(err).NotTo(HaveOccurred())

	rec := &audittest.Recorder{}
	auditLogger := audit.NewLogger(audit.ModeDenialsOnly, rec)
	ac, err := access.NewAccessControl(evaluator, auditLogger)
	Expect(err).NotTo(HaveOccurred())

	dispatcher, err := action.NewDispatcher(store, ac, hasher)
	Expect(err).NotTo(HaveOccurred())

	runCtx, cancel := context.WithCancel(context.Background())
	env = &scenarioEnv{
		store:  store,
		audit:  rec,
		logger: auditLogger,
		srv:    server.NewServer("127.0.0.1:0", dispatcher, store),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(env.done)
		_ = env.srv.Run(runCtx)
	}()
	Eventually(env.srv.Ready()).Should(BeClosed())
})

var _ = AfterSuite(func() {
	if env == nil {
		return
	}
	env.cancel()
	Eventually(env.done, 5*time.Second).Should(BeClosed())
	env.logger.Close()
})

func connect() *protocol.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := protocol.Dial(ctx, env.srv.Addr())
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(client.Close)
	return client
}

func do(client *protocol.Client, tag any, fields ...any) protocol.Response {
	resp, err := client.Do(tag, fields...)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

func succeeds(resp protocol.Response) {
	ExpectWithOffset(1, resp.Error).To(BeEmpty())
	ExpectWithOffset(1, resp.OK).To(BeTrue())
}

func phoneOf(username string) string {
	acct, err := env.store.Get(context.Background(), username)
	Expect(err).NotTo(HaveOccurred())
	return acct.Phone
}
