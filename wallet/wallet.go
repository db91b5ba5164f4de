package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet 签名器接口
//
// 协调引擎本身不实现任何密码学原语；这里只是给示例与测试提供
// 一个最小的本地签名器。私钥加密存储、硬件签名器不在本 SDK 范围内
type Wallet interface {
	// Address 获取签名者地址
	Address() common.Address

	// SignHash 对给定的 32 字节哈希（safeTxHash）签名
	SignHash(hash common.Hash) ([]byte, error)
}

// SimpleWallet 简单内存钱包实现（用于测试和开发）
type SimpleWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewWallet 创建新钱包（随机 secp256k1 私钥）
func NewWallet() (*SimpleWallet, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate private key: %w", err)
	}
	return &SimpleWallet{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// NewWalletFromPrivateKey 从私钥十六进制字符串创建钱包
func NewWalletFromPrivateKey(privateKeyHex string) (*SimpleWallet, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &SimpleWallet{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address 获取签名者地址
func (w *SimpleWallet) Address() common.Address {
	return w.address
}

// SignHash 对给定哈希签名
//
// 返回 65 字节签名（r || s || v），v 按以太坊惯例偏移到 27/28
func (w *SimpleWallet) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := ethcrypto.Sign(hash[:], w.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign hash: %w", err)
	}
	sig[64] += 27
	return sig, nil
}
