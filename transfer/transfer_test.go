// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transfer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/brb/identity"
)

func newBank(t *testing.T) (*Bank, identity.Actor) {
	kp, err := identity.GenerateKeypair()
	require.NoError(t, err)
	return New(kp.Actor()).(*Bank), kp.Actor()
}

func TestOpenAccountAndTransfer(t *testing.T) {
	require := require.New(t)

	bankA, a := newBank(t)
	_, b := newBank(t)

	open := bankA.OpenAccount(100)
	require.NoError(bankA.Validate(a, open))
	bankA.Apply(open)
	require.Equal(Money(100), bankA.Balance(a))

	xfer := bankA.Transfer(b, 30)
	require.NoError(bankA.Validate(a, xfer))
	bankA.Apply(xfer)
	require.Equal(Money(70), bankA.Balance(a))
	require.Equal(Money(30), bankA.Balance(b))
}

func TestRejectOverdraft(t *testing.T) {
	require := require.New(t)

	bank, a := newBank(t)
	_, b := newBank(t)

	bank.Apply(bank.OpenAccount(10))
	require.ErrorIs(bank.Validate(a, bank.Transfer(b, 11)), ErrInsufficientFunds)
}

func TestRejectTransferByNonOwner(t *testing.T) {
	require := require.New(t)

	bank, _ := newBank(t)
	_, b := newBank(t)

	bank.Apply(bank.OpenAccount(10))
	require.ErrorIs(bank.Validate(b, bank.Transfer(b, 5)), ErrTransferNotFromSource)
}

func TestRejectDuplicateAccount(t *testing.T) {
	require := require.New(t)

	bank, a := newBank(t)

	bank.Apply(bank.OpenAccount(10))
	require.ErrorIs(bank.Validate(a, bank.OpenAccount(10)), ErrAccountExists)
}

func TestRejectAccountOpenedForAnotherActor(t *testing.T) {
	require := require.New(t)

	bank, _ := newBank(t)
	otherBank, _ := newBank(t)

	op := otherBank.OpenAccount(10)
	require.ErrorIs(bank.Validate(bank.actor, op), ErrAccountNotFromSource)
}

func TestOpEncodingRoundTrip(t *testing.T) {
	require := require.New(t)

	bank, a := newBank(t)
	_, b := newBank(t)

	open := bank.OpenAccount(100)
	decoded, err := ParseOp(open.Bytes())
	require.NoError(err)
	require.Equal(open.Bytes(), decoded.Bytes())
	require.Equal(a, decoded.(*Op).Owner)

	xfer := bank.Transfer(b, 5)
	decoded, err = ParseOp(xfer.Bytes())
	require.NoError(err)
	require.Equal(xfer.Bytes(), decoded.Bytes())
	require.Equal(b, decoded.(*Op).To)

	_, err = ParseOp([]byte{0xee})
	require.Error(err)
}
