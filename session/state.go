// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package session

import "encoding/json"

// Phase is the coarse state of the mode state machine.
type Phase int

const (
	Unselected Phase = iota
	Resolving
	Active
	Failed
)

func (p Phase) String() string {
	switch p {
	case Resolving:
		return "RESOLVING"
	case Active:
		return "ACTIVE"
	case Failed:
		return "FAILED"
	}
	return "UNSELECTED"
}

// State is a snapshot of the state machine.  Err is only set when Phase is
// Failed.
type State struct {
	Phase Phase
	Mode  string
	Err   error
}

func (s State) MarshalJSON() ([]byte, error) {
	out := struct {
		Phase  string `json:"phase"`
		Mode   string `json:"mode,omitempty"`
		Reason string `json:"reason,omitempty"`
	}{
		Phase: s.Phase.String(),
		Mode:  s.Mode,
	}
	if s.Err != nil {
		out.Reason = s.Err.Error()
	}
	return json.Marshal(out)
}
