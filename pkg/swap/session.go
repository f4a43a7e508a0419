package swap

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/p2pswap/swapd/pkg/crypto"
)

// ActorSession is one connected, authenticated actor: an address, its
// signing capability, and the ledger client bound to it. Sessions are
// passed explicitly into every coordinator call; there is no ambient
// wallet state, so concurrent flows for different actors are safe in the
// same process. Sessions live for a work session and are never persisted.
type ActorSession struct {
	Key    *crypto.Signer
	Ledger LedgerClient
}

func NewActorSession(key *crypto.Signer, ledger LedgerClient) *ActorSession {
	return &ActorSession{Key: key, Ledger: ledger}
}

// Address returns the actor's ledger address.
func (a *ActorSession) Address() common.Address {
	return a.Key.Address()
}
