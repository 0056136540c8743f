// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"fmt"
)

// Kind is the type of a transaction.
type Kind uint8

const (
	KindDeploy Kind = iota + 1
	KindInvoke
	KindL1Handler
)

func (k Kind) String() string {
	switch k {
	case KindDeploy:
		return "DEPLOY"
	case KindInvoke:
		return "INVOKE_FUNCTION"
	case KindL1Handler:
		return "L1_HANDLER"
	default:
		return "UNKNOWN"
	}
}

// prefix is mixed into the transaction hash so that kinds never collide.
func (k Kind) prefix() string {
	switch k {
	case KindDeploy:
		return "deploy"
	case KindInvoke:
		return "invoke"
	default:
		return "l1_handler"
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "DEPLOY":
		return KindDeploy, nil
	case "INVOKE_FUNCTION":
		return KindInvoke, nil
	case "L1_HANDLER":
		return KindL1Handler, nil
	default:
		return 0, fmt.Errorf("invalid transaction type %q", s)
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Status is the lifecycle position of a transaction. RECEIVED moves exactly
// once, to ACCEPTED_ON_L2 or REJECTED.
type Status uint8

const (
	StatusNotReceived Status = iota
	StatusReceived
	StatusAcceptedOnL2
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusReceived:
		return "RECEIVED"
	case StatusAcceptedOnL2:
		return "ACCEPTED_ON_L2"
	case StatusRejected:
		return "REJECTED"
	default:
		return "NOT_RECEIVED"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "NOT_RECEIVED":
		*s = StatusNotReceived
	case "RECEIVED":
		*s = StatusReceived
	case "ACCEPTED_ON_L2":
		*s = StatusAcceptedOnL2
	case "REJECTED":
		*s = StatusRejected
	default:
		return fmt.Errorf("invalid transaction status %q", b)
	}
	return nil
}
