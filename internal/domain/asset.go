package domain

import "math/big"

// Asset represents one token owned by the queried account.
type Asset struct {
	Index    int       // enumeration index the token was observed at
	TokenID  *big.Int  // uint256 token id, assigned by the contract at mint
	URI      string    // tokenURI result, empty if the read failed
	Metadata *Metadata // nil until explicitly resolved
}

// Clone returns a copy that shares no mutable state with a.
func (a Asset) Clone() Asset {
	out := a
	if a.TokenID != nil {
		out.TokenID = new(big.Int).Set(a.TokenID)
	}
	if a.Metadata != nil {
		m := a.Metadata.Clone()
		out.Metadata = &m
	}
	return out
}

// ResolutionState is the per-asset metadata resolution state.
type ResolutionState string

// Resolution states. Failed may move back to Resolving on a manual retry.
const (
	StateIdle      ResolutionState = "idle"
	StateResolving ResolutionState = "resolving"
	StateResolved  ResolutionState = "resolved"
	StateFailed    ResolutionState = "failed"
)
