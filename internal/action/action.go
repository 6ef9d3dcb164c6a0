// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 usergate Contributors

// Package action defines the closed set of client actions and the
// dispatcher that runs one request cycle for each of them.
package action

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/samber/oops"

	"github.com/usergate/usergate/internal/access"
	"github.com/usergate/usergate/internal/protocol"
)

// Action is a client request kind.
type Action int

// The actions, numbered by their wire code.
const (
	ShowUsers Action = iota + 1
	ChangeOwnPhone
	ChangePhone
	AddUser
	Login
	Logout
	Exit
)

type descriptor struct {
	label  string
	object string
}

var table = map[Action]descriptor{
	ShowUsers:      {label: "Show users", object: access.ObjectShowUsers},
	ChangeOwnPhone: {label: "Change my phone number", object: access.ObjectChangeOwnPhone},
	ChangePhone:    {label: "Change someone's phone number", object: access.ObjectChangePhone},
	AddUser:        {label: "Add user", object: access.ObjectAddUser},
	Login:          {label: "Login", object: access.ObjectLogin},
	Logout:         {label: "Logout", object: access.ObjectLogout},
	Exit:           {label: "Exit", object: access.ObjectExit},
}

var (
	byLabel = make(map[string]Action, len(table))
	byCode  = make(map[string]Action, len(table))
)

func init() {
	objects := make(map[string]Action, len(table))
	for _, a := range All() {
		d, ok := table[a]
		if !ok {
			panic(fmt.Sprintf("action %d has no descriptor", int(a)))
		}
		if prev, dup := byLabel[d.label]; dup {
			panic(fmt.Sprintf("actions %d and %d share label %q", int(prev), int(a), d.label))
		}
		if prev, dup := objects[d.object]; dup {
			panic(fmt.Sprintf("actions %d and %d share object %q", int(prev), int(a), d.object))
		}
		byLabel[d.label] = a
		byCode[strconv.Itoa(int(a))] = a
		objects[d.object] = a
	}
	if len(table) != len(All()) {
		panic("action table has entries outside All()")
	}
	for _, o := range access.KnownObjects() {
		if _, ok := objects[o]; !ok {
			panic(fmt.Sprintf("policy object %q has no action", o))
		}
	}
}

// All returns every action in wire-code order.
func All() []Action {
	return []Action{ShowUsers, ChangeOwnPhone, ChangePhone, AddUser, Login, Logout, Exit}
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	_, ok := table[a]
	return ok
}

// String returns the action's label.
func (a Action) String() string {
	if d, ok := table[a]; ok {
		return d.label
	}
	return "Action(" + strconv.Itoa(int(a)) + ")"
}

// Code returns the numeric wire code.
func (a Action) Code() int {
	return int(a)
}

// Object returns the policy object the action is authorized against.
func (a Action) Object() string {
	return table[a].object
}

// Parse accepts an action label ("Login") or its numeric code ("5"),
// written exactly as the code's decimal digits.
func Parse(s string) (Action, error) {
	if a, ok := byLabel[s]; ok {
		return a, nil
	}
	if a, ok := byCode[s]; ok {
		return a, nil
	}
	return 0, oops.Code(CodeUnknownAction).With("tag", s).Errorf("unknown action %q", s)
}

// MarshalJSON encodes the action as its label.
func (a Action) MarshalJSON() ([]byte, error) {
	if !a.Valid() {
		return nil, oops.Code(CodeUnknownAction).With("code", int(a)).Errorf("cannot encode invalid action %d", int(a))
	}
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts a label or code as a JSON string, or a code as a
// JSON number.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := Parse(s)
		if err != nil {
			return &protocol.DecodeError{Msg: fmt.Sprintf("unknown action %q", s)}
		}
		*a = parsed
		return nil
	}

	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return &protocol.DecodeError{Msg: "action must be a string or an integer"}
	}
	if !Action(n).Valid() {
		return &protocol.DecodeError{Msg: fmt.Sprintf("unknown action code %d", n)}
	}
	*a = Action(n)
	return nil
}
