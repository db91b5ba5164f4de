package wallet

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestNewWalletFromPrivateKey(t *testing.T) {
	// 已知私钥 → 已知地址
	const keyHex = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	w, err := NewWalletFromPrivateKey(keyHex)
	if err != nil {
		t.Fatalf("NewWalletFromPrivateKey failed: %v", err)
	}
	want := common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23")
	if w.Address() != want {
		t.Errorf("address = %s, want %s", w.Address().Hex(), want.Hex())
	}

	// 无 0x 前缀同样接受
	w2, err := NewWalletFromPrivateKey(keyHex[2:])
	if err != nil {
		t.Fatalf("NewWalletFromPrivateKey without prefix failed: %v", err)
	}
	if w2.Address() != want {
		t.Error("prefix handling changed the derived address")
	}

	if _, err := NewWalletFromPrivateKey("not-a-key"); err == nil {
		t.Error("invalid key must fail")
	}
}

func TestSignHashRecoverable(t *testing.T) {
	w, err := NewWallet()
	if err != nil {
		t.Fatalf("NewWallet failed: %v", err)
	}

	hash := ethcrypto.Keccak256Hash([]byte("safe tx payload"))
	sig, err := w.SignHash(hash)
	if err != nil {
		t.Fatalf("SignHash failed: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if v := sig[64]; v != 27 && v != 28 {
		t.Errorf("v = %d, want 27 or 28", v)
	}

	// 去掉 v 偏移后可恢复出签名者公钥
	recSig := make([]byte, 65)
	copy(recSig, sig)
	recSig[64] -= 27
	pub, err := ethcrypto.SigToPub(hash[:], recSig)
	if err != nil {
		t.Fatalf("SigToPub failed: %v", err)
	}
	if recovered := ethcrypto.PubkeyToAddress(*pub); recovered != w.Address() {
		t.Errorf("recovered = %s, want %s", recovered.Hex(), w.Address().Hex())
	}
}
