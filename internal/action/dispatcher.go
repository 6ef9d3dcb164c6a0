// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package action

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/auth"
	"github.com/usergate/usergate/internal/logging"
	"github.com/usergate/usergate/internal/protocol"
	"github.com/usergate/usergate/internal/session"
	"github.com/usergate/usergate/internal/validate"
	"github.com/usergate/usergate/pkg/errutil"
)

var tracer = otel.Tracer("usergate/action")

// Construction errors.
var (
	ErrNilStore         = oops.Code("NIL_STORE").Errorf("account store is required")
	ErrNilAccessControl = oops.Code("NIL_ACCESS_CONTROL").Errorf("access control is required")
	ErrNilHasher        = oops.Code("NIL_HASHER").Errorf("hasher is required")
)

// Dispatcher runs request cycles. It holds no per-connection state and is
// safe for concurrent use by many connections.
type Dispatcher struct {
	store  account.Store
	access *access.AccessControl
	hasher auth.Hasher
	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher during construction.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for request outcomes.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a dispatcher. All arguments are required.
func NewDispatcher(store account.Store, ac *access.AccessControl, hasher auth.Hasher, opts ...DispatcherOption) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if ac == nil {
		return nil, ErrNilAccessControl
	}
	if hasher == nil {
		return nil, ErrNilHasher
	}
	d := &Dispatcher{
		store:  store,
		access: ac,
		hasher: hasher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// request holds the payload fields of one cycle.
type request struct {
	username string
	password string
	phone    string
	role     string
}

// Perform runs one request cycle for a, whose tag has already been read:
// it reads the payload, authorizes, validates, applies the change and
// sends exactly one response. Exit sends nothing and returns ErrExit.
//
// The returned error is the cycle's failure, if any. The caller must drop
// the connection when IsFatal reports true.
func (d *Dispatcher) Perform(ctx context.Context, user *session.ConnectedUser, a Action) (err error) {
	start := time.Now()
	ctx = logging.ContextWithConn(ctx, user.ID().String())
	ctx, span := tracer.Start(ctx, "action.perform",
		trace.WithAttributes(
			attribute.String("action.object", a.Object()),
			attribute.String("session.id", user.ID().String()),
		),
	)
	defer func() {
		recordRequest(a, err, start)
		if err != nil && !errors.Is(err, ErrExit) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := receive(user.Conn(), a)
	if err != nil {
		return err
	}

	resp, err := d.execute(ctx, user, a, req)
	if errors.Is(err, ErrExit) {
		d.logger.InfoContext(ctx, "client exit", "actor", actor(user))
		return err
	}
	if err != nil {
		d.logFailure(user, a, err)
		resp = protocol.Err(ClientMessage(err))
	}

	if sendErr := user.Conn().Send(resp); sendErr != nil {
		return oops.Code(CodeSendFailed).
			With("action", a.String()).
			With("cause", sendErr.Error()).
			Wrap(protocol.ErrClosed)
	}
	return err
}

// receive reads the payload fields of a in their declared order. Fields
// are always consumed, even if the request will be denied, so the stream
// stays in sync.
func receive(conn protocol.Connection, a Action) (request, error) {
	if !a.Valid() {
		return request{}, oops.Code("PROTOCOL_ERROR").With("code", int(a)).Wrap(protocol.ErrProtocol)
	}

	var (
		req    request
		fields []*string
	)
	switch a {
	case ShowUsers, Logout, Exit:
	case ChangeOwnPhone:
		fields = []*string{&req.phone}
	case ChangePhone:
		fields = []*string{&req.username, &req.phone}
	case AddUser:
		fields = []*string{&req.username, &req.password, &req.phone, &req.role}
	case Login:
		fields = []*string{&req.username, &req.password}
	}

	for _, f := range fields {
		if err := conn.Receive(f); err != nil {
			return request{}, err
		}
	}
	return req, nil
}

func (d *Dispatcher) execute(ctx context.Context, user *session.ConnectedUser, a Action, req request) (protocol.Response, error) {
	subject, err := user.Subject(ctx)
	if err != nil {
		return protocol.Response{}, err
	}

	allowed, err := d.access.Authorize(ctx, access.Request{
		Subject:  subject,
		Identity: identity(user),
		Object:   a.Object(),
	})
	if err != nil {
		return protocol.Response{}, err
	}
	if !allowed {
		return protocol.Response{}, ErrPermissionDenied(a, subject.String())
	}

	switch a {
	case ShowUsers:
		return d.showUsers(ctx, user)
	case ChangeOwnPhone:
		return d.changeOwnPhone(ctx, user, req)
	case ChangePhone:
		return d.changePhone(ctx, user, req)
	case AddUser:
		return d.addUser(ctx, user, req)
	case Login:
		return d.login(ctx, user, req)
	case Logout:
		return d.logout(ctx, user)
	case Exit:
		return protocol.Response{}, ErrExit
	}
	return protocol.Response{}, oops.Code(CodeUnknownAction).With("code", int(a)).Errorf("no handler for action %d", int(a))
}

func (d *Dispatcher) showUsers(ctx context.Context, user *session.ConnectedUser) (protocol.Response, error) {
	accounts, err := d.store.Values(ctx)
	if err != nil {
		return protocol.Response{}, StoreError("list accounts", err)
	}

	profiles := make([]account.Profile, 0, len(accounts))
	for _, acct := range accounts {
		profiles = append(profiles, acct.Public())
	}

	d.logger.InfoContext(ctx, "users sent", "actor", actor(user), "count", len(profiles))
	return protocol.OK(profiles)
}

func (d *Dispatcher) changeOwnPhone(ctx context.Context, user *session.ConnectedUser, req request) (protocol.Response, error) {
	username, err := user.Identity()
	if err != nil {
		return protocol.Response{}, ErrNotLoggedIn(ChangeOwnPhone)
	}
	if !validate.Phone(req.phone) {
		return protocol.Response{}, ErrInvalidPhone(req.phone)
	}

	err = d.store.Update(ctx, username, func(acct *account.Account) error {
		acct.SetPhone(req.phone)
		return nil
	})
	if errors.Is(err, account.ErrNotFound) {
		return protocol.Response{}, ErrInternalInconsistency(username)
	}
	if err != nil {
		return protocol.Response{}, StoreError("update own phone", err)
	}

	d.logger.InfoContext(ctx, "phone number changed", "username", username, "actor", username)
	return protocol.OK(nil)
}

func (d *Dispatcher) changePhone(ctx context.Context, user *session.ConnectedUser, req request) (protocol.Response, error) {
	if !validate.Username(req.username) {
		return protocol.Response{}, ErrInvalidUsername(req.username)
	}
	if !validate.Phone(req.phone) {
		return protocol.Response{}, ErrInvalidPhone(req.phone)
	}

	err := d.store.Update(ctx, req.username, func(acct *account.Account) error {
		acct.SetPhone(req.phone)
		return nil
	})
	if errors.Is(err, account.ErrNotFound) {
		return protocol.Response{}, ErrTargetNotFound(req.username)
	}
	if err != nil {
		return protocol.Response{}, StoreError("update phone", err)
	}

	d.logger.InfoContext(ctx, "phone number changed", "username", req.username, "actor", actor(user))
	return protocol.OK(nil)
}

func (d *Dispatcher) addUser(ctx context.Context, user *session.ConnectedUser, req request) (protocol.Response, error) {
	if !validate.Username(req.username) {
		return protocol.Response{}, ErrInvalidUsername(req.username)
	}
	if !validate.Password(req.password) {
		return protocol.Response{}, ErrInvalidPassword()
	}
	if !validate.Phone(req.phone) {
		return protocol.Response{}, ErrInvalidPhone(req.phone)
	}
	role, err := account.ParseRole(req.role)
	if err != nil {
		return protocol.Response{}, ErrInvalidRole(req.role)
	}

	_, err = d.store.Get(ctx, req.username)
	if err == nil {
		return protocol.Response{}, ErrUserExists(req.username)
	}
	if !errors.Is(err, account.ErrNotFound) {
		return protocol.Response{}, StoreError("look up new user", err)
	}

	salt, err := d.hasher.GenerateSalt()
	if err != nil {
		return protocol.Response{}, oops.Code("CREDENTIAL_FAILED").With("username", req.username).Errorf("generate salt: %v", err)
	}
	hash, err := d.hasher.Hash(req.password, salt)
	if err != nil {
		return protocol.Response{}, oops.Code("CREDENTIAL_FAILED").With("username", req.username).Errorf("hash password: %v", err)
	}

	err = d.store.Create(ctx, account.New(req.username, hash, salt, req.phone, role))
	if errors.Is(err, account.ErrAlreadyExists) {
		return protocol.Response{}, ErrUserExists(req.username)
	}
	if err != nil {
		return protocol.Response{}, StoreError("create user", err)
	}

	d.logger.InfoContext(ctx, "user added", "username", req.username, "role", role.String(), "actor", actor(user))
	return protocol.OK(nil)
}

func (d *Dispatcher) login(ctx context.Context, user *session.ConnectedUser, req request) (protocol.Response, error) {
	if !validate.Username(req.username) {
		return protocol.Response{}, ErrInvalidUsername(req.username)
	}
	if !validate.Password(req.password) {
		return protocol.Response{}, ErrInvalidPassword()
	}

	acct, err := d.store.Get(ctx, req.username)
	if errors.Is(err, account.ErrNotFound) {
		// Spend the same hashing work as a real check.
		_, _ = d.hasher.Hash(req.password, auth.DummySalt) //nolint:errcheck // timing only
		return protocol.Response{}, ErrInvalidCredentials(req.username)
	}
	if err != nil {
		return protocol.Response{}, StoreError("look up login user", err)
	}
	if !d.hasher.Verify(req.password, acct.Salt, acct.PasswordHash) {
		return protocol.Response{}, ErrInvalidCredentials(req.username)
	}

	user.Authenticate(acct.Username)
	d.logger.InfoContext(ctx, "logged in", "username", acct.Username)
	return protocol.OK(nil)
}

func (d *Dispatcher) logout(ctx context.Context, user *session.ConnectedUser) (protocol.Response, error) {
	d.logger.InfoContext(ctx, "logged out", "username", actor(user))
	user.Deauthenticate()
	return protocol.OK(nil)
}

func (d *Dispatcher) logFailure(user *session.ConnectedUser, a Action, err error) {
	logger := d.logger.With("action", a.String(), "actor", actor(user), "conn_id", user.ID().String())
	switch {
	case IsFatal(err):
		errutil.LogError(logger, "request failed, closing connection", err)
	case ClientMessage(err) == MsgInternal:
		errutil.LogError(logger, "request failed", err)
	case errutil.Code(err) == CodePermissionDenied:
		// AccessControl has already logged and audited the denial.
	default:
		errutil.LogWarn(logger, "request rejected", err)
	}
}

func identity(user *session.ConnectedUser) string {
	id, err := user.Identity()
	if err != nil {
		return ""
	}
	return id
}

func actor(user *session.ConnectedUser) string {
	if id := identity(user); id != "" {
		return id
	}
	return access.SubjectAnonymous.String()
}
