// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transfer implements an asset-transfer data type in the style of
// AT2: accounts are actors, and the broadcast core's per-source ordering
// stands in for consensus on transfer order.
package transfer

import (
	"errors"
	"fmt"

	"github.com/luxfi/brb/datatype"
	"github.com/luxfi/brb/identity"
	"github.com/luxfi/brb/utils/wrappers"
)

var (
	// ErrTransferNotFromSource rejects transfers not initiated by the
	// account owner.
	ErrTransferNotFromSource = errors.New("transfer is not from the source account")

	// ErrInsufficientFunds rejects transfers exceeding the source balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountExists rejects opening an account that already exists.
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFromSource rejects opening an account for someone else.
	ErrAccountNotFromSource = errors.New("account owner is not the source")

	errUnknownOpKind = errors.New("unknown transfer op kind")
)

// Money is an account balance.
type Money uint64

// OpKind tags the bank ops.
type OpKind uint8

const (
	OpOpenAccount OpKind = iota
	OpTransfer
)

// Op is a bank mutation: open an account or move money between accounts.
type Op struct {
	Kind OpKind

	// Owner and Balance describe an OpenAccount.
	Owner   identity.Actor
	Balance Money

	// From, To and Amount describe a Transfer.
	From   identity.Actor
	To     identity.Actor
	Amount Money
}

// Bytes returns the canonical encoding of the op.
func (o *Op) Bytes() []byte {
	p := wrappers.NewPacker(80)
	p.PackByte(byte(o.Kind))
	switch o.Kind {
	case OpOpenAccount:
		p.PackFixedBytes(o.Owner.Bytes())
		p.PackLong(uint64(o.Balance))
	case OpTransfer:
		p.PackFixedBytes(o.From.Bytes())
		p.PackFixedBytes(o.To.Bytes())
		p.PackLong(uint64(o.Amount))
	}
	return p.Bytes
}

// ParseOp decodes an op from its canonical encoding.
func ParseOp(b []byte) (datatype.Op, error) {
	u := wrappers.NewUnpacker(b)
	op := &Op{Kind: OpKind(u.UnpackByte())}
	switch op.Kind {
	case OpOpenAccount:
		op.Owner, _ = identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
		op.Balance = Money(u.UnpackLong())
	case OpTransfer:
		op.From, _ = identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
		op.To, _ = identity.ActorFromBytes(u.UnpackFixedBytes(identity.ActorLen))
		op.Amount = Money(u.UnpackLong())
	default:
		return nil, fmt.Errorf("%w: %d", errUnknownOpKind, op.Kind)
	}
	if err := u.Done(); err != nil {
		return nil, err
	}
	return op, nil
}

// Bank is one replica of the accounts.
type Bank struct {
	actor    identity.Actor
	balances map[identity.Actor]Money
}

// New constructs the replica owned by [actor]. It satisfies datatype.New.
func New(actor identity.Actor) datatype.DataType {
	return &Bank{
		actor:    actor,
		balances: make(map[identity.Actor]Money),
	}
}

// OpenAccount builds the op opening this replica's own account with
// [balance].
func (b *Bank) OpenAccount(balance Money) *Op {
	return &Op{
		Kind:    OpOpenAccount,
		Owner:   b.actor,
		Balance: balance,
	}
}

// Transfer builds the op moving [amount] from this replica's account to
// [to].
func (b *Bank) Transfer(to identity.Actor, amount Money) *Op {
	return &Op{
		Kind:   OpTransfer,
		From:   b.actor,
		To:     to,
		Amount: amount,
	}
}

// Balance returns the balance of [account].
func (b *Bank) Balance(account identity.Actor) Money {
	return b.balances[account]
}

// Validate implements datatype.DataType.
func (b *Bank) Validate(source identity.Actor, dtOp datatype.Op) error {
	op, ok := dtOp.(*Op)
	if !ok {
		return fmt.Errorf("%w: %T", errUnknownOpKind, dtOp)
	}
	switch op.Kind {
	case OpOpenAccount:
		if op.Owner != source {
			return fmt.Errorf("%w: %s opened by %s", ErrAccountNotFromSource, op.Owner, source)
		}
		if _, exists := b.balances[op.Owner]; exists {
			return fmt.Errorf("%w: %s", ErrAccountExists, op.Owner)
		}
		return nil
	case OpTransfer:
		if op.From != source {
			return fmt.Errorf("%w: %s moved by %s", ErrTransferNotFromSource, op.From, source)
		}
		if b.balances[op.From] < op.Amount {
			return fmt.Errorf("%w: balance %d, transfer %d",
				ErrInsufficientFunds, b.balances[op.From], op.Amount)
		}
		return nil
	default:
		return fmt.Errorf("%w: %d", errUnknownOpKind, op.Kind)
	}
}

// Apply implements datatype.DataType.
func (b *Bank) Apply(dtOp datatype.Op) {
	op, ok := dtOp.(*Op)
	if !ok {
		return
	}
	switch op.Kind {
	case OpOpenAccount:
		b.balances[op.Owner] = op.Balance
	case OpTransfer:
		b.balances[op.From] -= op.Amount
		b.balances[op.To] += op.Amount
	}
}
