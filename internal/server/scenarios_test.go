// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package server_test

import (
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/account"
	"github.com/usergate/usergate/internal/action"
)

var _ = Describe("Anonymous clients", func() {
	BeforeEach(func() {
		env.audit.Reset()
	})

	It("are denied every member and personnel action, with an audit entry each", func() {
		client := connect()

		for _, tc := range []struct {
			tag    string
			fields []any
			object string
		}{
			{action.ShowUsers.String(), nil, access.ObjectShowUsers},
			{action.Logout.String(), nil, access.ObjectLogout},
			{action.ChangeOwnPhone.String(), []any{"0700000000"}, access.ObjectChangeOwnPhone},
			{action.ChangePhone.String(), []any{"default_hr", "0700000000"}, access.ObjectChangePhone},
		} {
			resp := do(client, tc.tag, tc.fields...)
			Expect(resp.OK).To(BeFalse(), tc.tag)
			Expect(resp.Error).To(Equal(action.MsgPermissionDenied), tc.tag)
		}

		denials := env.audit.Denials()
		Expect(denials).To(HaveLen(4))
		for _, d := range denials {
			Expect(d.Subject).To(Equal(access.SubjectAnonymous.String()))
			Expect(d.Identity).To(Equal("anonymous"))
		}
		Expect(denials[3].Object).To(Equal(access.ObjectChangePhone))
		Expect(phoneOf("default_hr")).To(Equal("0793175289"))
	})

	It("are told the same thing for an unknown user and a wrong password", func() {
		client := connect()

		unknown := do(client, action.Login.String(), "nobody_here", account.DefaultSeedPassword)
		wrong := do(client, action.Login.String(), "default_user", "another-Strong-passphrase-99")

		Expect(unknown.OK).To(BeFalse())
		Expect(wrong.OK).To(BeFalse())
		Expect(unknown.Error).To(Equal(action.MsgInvalidCredentials))
		Expect(wrong.Error).To(Equal(unknown.Error))

		Expect(do(client, action.ShowUsers.String()).Error).To(Equal(action.MsgPermissionDenied))
	})
})

var _ = Describe("Standard users", func() {
	It("change their own phone but not anyone else's", func() {
		c := connect()
		succeeds(do(c, action.Login.String(), "default_user", account.DefaultSeedPassword))

		resp := do(c, action.ChangePhone.String(), "default_hr", "0711111111")
		Expect(resp.Error).To(Equal(action.MsgPermissionDenied))
		Expect(phoneOf("default_hr")).To(Equal("0793175289"))

		Expect(do(c, action.ChangeOwnPhone.String(), "12345").Error).To(Equal(action.MsgInvalidPhone))

		succeeds(do(c, action.ChangeOwnPhone.String(), "0722222222"))
		Expect(phoneOf("default_user")).To(Equal("0722222222"))

		succeeds(do(c, action.Logout.String()))
		Expect(do(c, action.ChangeOwnPhone.String(), "0733333333").Error).To(Equal(action.MsgPermissionDenied))
	})
})

var _ = Describe("HR users", func() {
	It("list, add and update accounts", func() {
		c := connect()
		succeeds(do(c, action.Login.String(), "default_hr", account.DefaultSeedPassword))

		Expect(do(c, action.AddUser.String(), "ab", account.DefaultSeedPassword, "0744444444", "standard").Error).
			To(Equal(action.MsgInvalidUsername))
		Expect(do(c, action.AddUser.String(), "bob.2", "password", "0744444444", "standard").Error).
			To(Equal(action.MsgInvalidPassword))
		Expect(do(c, action.AddUser.String(), "bob.2", account.DefaultSeedPassword, "0744444444", "admin").Error).
			To(Equal(action.MsgInvalidRole))

		succeeds(do(c, action.AddUser.String(), "bob.2", "Tr0ub4dor-and-3-horses", "0744444444", "standard"))
		Expect(do(c, action.AddUser.String(), "bob.2", "Tr0ub4dor-and-3-horses", "0755555555", "hr").Error).
			To(Equal(action.MsgUserExists))
		Expect(phoneOf("bob.2")).To(Equal("0744444444"))

		Expect(do(c, action.ChangePhone.String(), "ghost_user", "0766666666").Error).To(Equal(action.MsgTargetNotFound))
		succeeds(do(c, action.ChangePhone.String(), "bob.2", "0766666666"))

		resp := do(c, action.ShowUsers.String())
		succeeds(resp)
		var profiles []account.Profile
		Expect(resp.Decode(&profiles)).To(Succeed())
		Expect(profiles).To(ContainElement(account.Profile{Username: "bob.2", Phone: "0766666666", Role: account.RoleStandard}))

		bob := connect()
		succeeds(do(bob, action.Login.String(), "bob.2", "Tr0ub4dor-and-3-horses"))
		Expect(do(bob, action.ShowUsers.String()).Error).To(Equal(action.MsgPermissionDenied))
	})
})

var _ = Describe("Exit", func() {
	It("closes the connection without a response", func() {
		c := connect()
		Expect(c.Send(action.Exit.String())).To(Succeed())
		_, err := c.Read()
		Expect(err).To(HaveOccurred())
	})
})
