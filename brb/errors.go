// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package brb

import "errors"

var (
	// ErrInvalidSignature is returned when a packet or endorsement signature
	// does not verify.
	ErrInvalidSignature = errors.New("signature is invalid")

	// ErrPacketSourceIsNotDot rejects a request whose dot was incremented by
	// a different actor than the packet source.
	ErrPacketSourceIsNotDot = errors.New("packet source is not the dot actor")

	// ErrMsgDotNotTheNextDot rejects a request whose dot is not the next dot
	// expected from its source.
	ErrMsgDotNotTheNextDot = errors.New("msg dot is out of order")

	// ErrSourceAlreadyHasPendingMsg rejects a request from a source whose
	// previous msg has not yet been delivered.
	ErrSourceAlreadyHasPendingMsg = errors.New("source already has a pending msg")

	// ErrMessageFromDifferentGeneration rejects a request issued at a
	// different generation than ours.
	ErrMessageFromDifferentGeneration = errors.New("msg from a different generation")

	// ErrSourceIsNotVotingMember rejects a request from an actor outside the
	// voting group.
	ErrSourceIsNotVotingMember = errors.New("source is not a voting member")

	// ErrDataTypeFailedValidation wraps a rejection by the data type.
	ErrDataTypeFailedValidation = errors.New("data type failed to validate the op")

	// ErrSignedValidatedForMsgWeDidNotRequest rejects endorsements for msgs
	// this process did not originate.
	ErrSignedValidatedForMsgWeDidNotRequest = errors.New("signed validated for a msg we did not request")

	// ErrMsgDotNotNextDotToBeDelivered rejects a proof that is not for the
	// next msg to deliver from its source.
	ErrMsgDotNotNextDotToBeDelivered = errors.New("msg dot is not the next dot to be delivered")

	// ErrNotEnoughSignaturesToFormQuorum rejects a proof with fewer
	// signatures than a supermajority.
	ErrNotEnoughSignaturesToFormQuorum = errors.New("not enough signatures to form quorum")

	// ErrProofContainsSignaturesFromNonMembers rejects a proof with a signer
	// outside the voting group at the msg's generation.
	ErrProofContainsSignaturesFromNonMembers = errors.New("proof contains signatures from non-members")

	// ErrProofContainsInvalidSignatures rejects a proof with a signature
	// that does not verify over the msg.
	ErrProofContainsInvalidSignatures = errors.New("proof contains invalid signatures")

	// ErrUnknownTag is returned when decoding meets an unknown variant tag.
	ErrUnknownTag = errors.New("unknown tag")
)
