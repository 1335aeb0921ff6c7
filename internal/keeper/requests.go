// Package keeper drives the automation engine: it loads signed requests
// from disk and polls their trigger conditions until each one executes
// or the run is stopped.
package keeper

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"rangeKeeper/internal/automation"
)

// Request kinds accepted in the requests file.
const (
	KindClaim     = "claim"
	KindClose     = "close"
	KindRebalance = "rebalance"
)

// SignedRequest is one entry in the requests file: a request payload of
// the given kind plus the owner's signature over its digest.
type SignedRequest struct {
	Kind      string          `json:"kind"`
	Signature string          `json:"signature"` // 65-byte hex
	Payload   json.RawMessage `json:"payload"`

	claim     *automation.ClaimRequest
	close     *automation.CloseRequest
	rebalance *automation.RebalanceRequest
	sig       []byte
}

func (r *SignedRequest) decode() error {
	sig, err := hexutil.Decode(r.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	r.sig = sig

	switch r.Kind {
	case KindClaim:
		r.claim = &automation.ClaimRequest{}
		return json.Unmarshal(r.Payload, r.claim)
	case KindClose:
		r.close = &automation.CloseRequest{}
		return json.Unmarshal(r.Payload, r.close)
	case KindRebalance:
		r.rebalance = &automation.RebalanceRequest{}
		return json.Unmarshal(r.Payload, r.rebalance)
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}
}

// PositionID returns the target position of the decoded request.
func (r *SignedRequest) PositionID() uint64 {
	switch r.Kind {
	case KindClaim:
		return r.claim.PositionID
	case KindClose:
		return r.close.PositionID
	default:
		return r.rebalance.PositionID
	}
}

// Digest returns the typed digest the signature covers.
func (r *SignedRequest) Digest(domain common.Hash) common.Hash {
	switch r.Kind {
	case KindClaim:
		return r.claim.Digest(domain)
	case KindClose:
		return r.close.Digest(domain)
	default:
		return r.rebalance.Digest(domain)
	}
}

// LoadRequests parses and validates a JSON array of signed requests.
func LoadRequests(path string) ([]*SignedRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requests file: %w", err)
	}

	var requests []*SignedRequest
	if err := json.Unmarshal(data, &requests); err != nil {
		return nil, fmt.Errorf("parse requests file: %w", err)
	}

	for i, req := range requests {
		if err := req.decode(); err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
	}
	return requests, nil
}
