package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	eth_crypto "github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateKey(t *testing.T) {
	signer, err := GenerateKey()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	if signer.Address() == (common.Address{}) {
		t.Error("generated zero address")
	}

	privHex := signer.PrivateKeyHex()
	if len(privHex) != 64 {
		t.Errorf("private key hex length = %d, want 64", len(privHex))
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	signer1, _ := GenerateKey()
	privHex := signer1.PrivateKeyHex()
	expectedAddr := signer1.Address()

	// Round trip without prefix
	signer2, err := FromPrivateKeyHex(privHex)
	if err != nil {
		t.Fatalf("failed to load key: %v", err)
	}
	if signer2.Address() != expectedAddr {
		t.Errorf("address = %s, want %s", signer2.Address().Hex(), expectedAddr.Hex())
	}

	// 0x prefix accepted too
	signer3, err := FromPrivateKeyHex("0x" + privHex)
	if err != nil {
		t.Fatalf("failed to load prefixed key: %v", err)
	}
	if signer3.Address() != expectedAddr {
		t.Errorf("prefixed address = %s, want %s", signer3.Address().Hex(), expectedAddr.Hex())
	}
}

func TestSign(t *testing.T) {
	signer, _ := GenerateKey()

	hash := eth_crypto.Keccak256([]byte("swap order payload"))
	signature, err := signer.Sign(hash)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	if len(signature) != 65 {
		t.Errorf("signature length = %d, want 65", len(signature))
	}

	if _, err := signer.Sign([]byte("short")); err == nil {
		t.Error("expected error for non-32-byte hash")
	}
}

func TestSignTx(t *testing.T) {
	signer, _ := GenerateKey()
	chainID := big.NewInt(11155111)

	to := common.HexToAddress("0x0000000000000000000000000000000000000042")
	tx := types.NewTransaction(0, to, big.NewInt(0), 21000, big.NewInt(1), nil)

	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		t.Fatalf("failed to sign tx: %v", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	if err != nil {
		t.Fatalf("failed to recover sender: %v", err)
	}
	if from != signer.Address() {
		t.Errorf("sender = %s, want %s", from.Hex(), signer.Address().Hex())
	}
}
