package automation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Typed-digest construction in the EIP-712 style: the domain separator
// binds a human-readable name/version pair so signatures cannot replay
// across deployments, and each request type hashes its fields under a
// distinct type hash.

var (
	domainTypeHash    = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version)"))
	claimTypeHash     = crypto.Keccak256Hash([]byte("ClaimRequest(uint256 positionId,uint256 interval,uint256 initialTimestamp,uint256 minAmountUsd,uint8 output,address recipient,uint256 nonce)"))
	closeTypeHash     = crypto.Keccak256Hash([]byte("CloseRequest(uint256 positionId,uint256 triggerSqrtPriceX96,bool belowOrAbove,uint8 output,address recipient,uint256 nonce)"))
	rebalanceTypeHash = crypto.Keccak256Hash([]byte("RebalanceRequest(uint256 positionId,uint256 triggerLowerX96,uint256 triggerUpperX96,uint256 nonce)"))
)

// DomainSeparator derives the deployment-stable domain hash.
func DomainSeparator(name, version string) common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash.Bytes(),
		crypto.Keccak256([]byte(name)),
		crypto.Keccak256([]byte(version)),
	)
}

func word(v *big.Int) []byte {
	if v == nil {
		v = big.NewInt(0)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

func wordUint64(v uint64) []byte {
	return word(new(big.Int).SetUint64(v))
}

func wordBool(v bool) []byte {
	if v {
		return wordUint64(1)
	}
	return wordUint64(0)
}

func wordAddress(a common.Address) []byte {
	return common.LeftPadBytes(a.Bytes(), 32)
}

func typedDigest(domain common.Hash, structHash common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain.Bytes(), structHash.Bytes())
}

// Digest returns the signable typed digest of a claim request.
func (r ClaimRequest) Digest(domain common.Hash) common.Hash {
	structHash := crypto.Keccak256Hash(
		claimTypeHash.Bytes(),
		wordUint64(r.PositionID),
		wordUint64(r.Interval),
		wordUint64(r.InitialTimestamp),
		word(r.MinAmountUSD),
		wordUint64(uint64(r.Output)),
		wordAddress(r.Recipient),
		wordUint64(r.Nonce),
	)
	return typedDigest(domain, structHash)
}

// Digest returns the signable typed digest of a close request.
func (r CloseRequest) Digest(domain common.Hash) common.Hash {
	structHash := crypto.Keccak256Hash(
		closeTypeHash.Bytes(),
		wordUint64(r.PositionID),
		word(r.TriggerSqrtPriceX96),
		wordBool(r.BelowOrAbove),
		wordUint64(uint64(r.Output)),
		wordAddress(r.Recipient),
		wordUint64(r.Nonce),
	)
	return typedDigest(domain, structHash)
}

// Digest returns the signable typed digest of a rebalance request.
func (r RebalanceRequest) Digest(domain common.Hash) common.Hash {
	structHash := crypto.Keccak256Hash(
		rebalanceTypeHash.Bytes(),
		wordUint64(r.PositionID),
		word(r.TriggerLowerX96),
		word(r.TriggerUpperX96),
		wordUint64(r.Nonce),
	)
	return typedDigest(domain, structHash)
}
