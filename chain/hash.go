// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chain

import (
	"github.com/ava-labs/l2devnet/felt"
)

var contractAddressPrefix = felt.FromShortString("STARKNET_CONTRACT_ADDRESS")

// ContractAddress derives the address a deploy of [classHash] lands at. It is
// a pure function of its inputs.
func ContractAddress(salt, classHash felt.Felt, constructorCalldata []felt.Felt, deployer felt.Felt) felt.Felt {
	return felt.HashOnElements(
		contractAddressPrefix,
		deployer,
		salt,
		classHash,
		felt.HashOnElements(constructorCalldata...),
	)
}

// TxHash derives the hash of a transaction. [nonce] is the number of
// transactions received before this one, which keeps hashes unique even for
// identical requests.
func TxHash(kind Kind, address, selector felt.Felt, calldata []felt.Felt, maxFee, chainID felt.Felt, nonce uint64) felt.Felt {
	return felt.HashOnElements(
		felt.FromShortString(kind.prefix()),
		address,
		selector,
		felt.HashOnElements(calldata...),
		maxFee,
		chainID,
		felt.FromUint64(nonce),
	)
}
