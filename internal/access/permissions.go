// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

package access

// Policy objects, one per action.
const (
	ObjectShowUsers      = "show_users"
	ObjectChangeOwnPhone = "change_own_phone"
	ObjectChangePhone    = "change_phone"
	ObjectAddUser        = "add_user"
	ObjectLogin          = "login"
	ObjectLogout         = "logout"
	ObjectExit           = "exit"
)

// KnownObjects lists every object a request may name.
func KnownObjects() []string {
	return []string{
		ObjectShowUsers,
		ObjectChangeOwnPhone,
		ObjectChangePhone,
		ObjectAddUser,
		ObjectLogin,
		ObjectLogout,
		ObjectExit,
	}
}

// Permission groups define reusable sets of objects.
// Subjects compose these groups rather than inheriting.

var connectionPowers = []string{
	ObjectLogin,
	ObjectExit,
}

var memberPowers = []string{
	ObjectLogout,
	ObjectChangeOwnPhone,
}

var personnelPowers = []string{
	ObjectShowUsers,
	ObjectChangePhone,
	ObjectAddUser,
}

// DefaultPolicy returns the reference allow-list.
func DefaultPolicy() map[string][]string {
	return map[string][]string{
		SubjectAnonymous.String(): compose(connectionPowers),
		SubjectStandard.String():  compose(connectionPowers, memberPowers),
		SubjectHR.String():        compose(connectionPowers, memberPowers, personnelPowers),
	}
}

func compose(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
