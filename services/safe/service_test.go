package safe

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/safecoord/coordinator-sdk-go/services/store"
	"github.com/safecoord/coordinator-sdk-go/types"
)

var (
	safeAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	ownerA   = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	ownerB   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	stranger = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	txHash   = common.HexToHash("0x00000000000000000000000000000000000000000000000000000000000000aa")
)

// fakeGateway 固定返回的链上网关，记录提交调用
type fakeGateway struct {
	owners    []common.Address
	threshold int
	nonce     uint64
	deployed  bool
	confirmed bool
	submitTx  string
	err       error

	submitCalls int
}

func (g *fakeGateway) GetOwners(context.Context, common.Address) ([]common.Address, error) {
	return g.owners, g.err
}

func (g *fakeGateway) GetThreshold(context.Context, common.Address) (int, error) {
	return g.threshold, g.err
}

func (g *fakeGateway) GetNonce(context.Context, common.Address) (uint64, error) {
	return g.nonce, g.err
}

func (g *fakeGateway) IsDeployed(context.Context, common.Address) (bool, error) {
	return g.deployed, g.err
}

func (g *fakeGateway) Submit(context.Context, string) (string, error) {
	g.submitCalls++
	return g.submitTx, g.err
}

func (g *fakeGateway) TransactionConfirmed(context.Context, string) (bool, error) {
	return g.confirmed, g.err
}

func (g *fakeGateway) Call(context.Context, string, interface{}) (interface{}, error) {
	return nil, g.err
}

func (g *fakeGateway) Close() error { return nil }

func newTestService(t *testing.T, gateway *fakeGateway) (Service, store.Service) {
	t.Helper()
	st := store.NewFileStore(filepath.Join(t.TempDir(), "tx.json"))
	return NewService(st, gateway, nil), st
}

func createProposal(t *testing.T, svc Service) *types.StoredTransaction {
	t.Helper()
	record, err := svc.CreateTransaction(context.Background(), txHash, safeAddr, "1",
		types.TxMetadata{
			To:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Value: big.NewInt(1000),
			Nonce: 0,
		}, ownerA)
	if err != nil {
		t.Fatalf("CreateTransaction failed: %v", err)
	}
	return record
}

func TestAddSignatureRejectsNonOwner(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA, ownerB}, threshold: 2}
	svc, _ := newTestService(t, gateway)
	createProposal(t, svc)

	_, err := svc.AddSignature(context.Background(), txHash, stranger, []byte{0x01})
	if !types.HasCode(err, types.ErrorCodeNotAnOwner) {
		t.Fatalf("error = %v, want NotAnOwner", err)
	}
}

func TestAddSignatureTransitionsAtThreshold(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA, ownerB}, threshold: 2}
	svc, _ := newTestService(t, gateway)
	createProposal(t, svc)
	ctx := context.Background()

	record, err := svc.AddSignature(ctx, txHash, ownerA, []byte{0x01})
	if err != nil {
		t.Fatalf("first AddSignature failed: %v", err)
	}
	if record.Status != types.StatusPending {
		t.Errorf("status = %s, want pending below threshold", record.Status)
	}

	record, err = svc.AddSignature(ctx, txHash, ownerB, []byte{0x02})
	if err != nil {
		t.Fatalf("second AddSignature failed: %v", err)
	}
	if record.Status != types.StatusSigned {
		t.Errorf("status = %s, want signed at threshold", record.Status)
	}
	if len(record.Signatures) != 2 {
		t.Errorf("signatures = %d, want 2", len(record.Signatures))
	}
}

func TestAddSignatureGatewayErrorLeavesRecordUntouched(t *testing.T) {
	gateway := &fakeGateway{err: types.ErrNetwork("node unreachable", nil)}
	svc, st := newTestService(t, gateway)
	createProposal(t, svc)

	_, err := svc.AddSignature(context.Background(), txHash, ownerA, []byte{0x01})
	if !types.HasCode(err, types.ErrorCodeNetworkError) {
		t.Fatalf("error = %v, want NetworkError", err)
	}

	record, getErr := st.Get(txHash)
	if getErr != nil {
		t.Fatalf("Get failed: %v", getErr)
	}
	if len(record.Signatures) != 0 {
		t.Error("gateway failure must not record the signature")
	}
}

func TestAddSignatureRejectsTerminalRecord(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA}, threshold: 1}
	svc, st := newTestService(t, gateway)
	createProposal(t, svc)
	if _, err := st.UpdateStatus(txHash, types.StatusRejected, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	_, err := svc.AddSignature(context.Background(), txHash, ownerA, []byte{0x01})
	if !types.HasCode(err, types.ErrorCodeInvalidTransition) {
		t.Fatalf("error = %v, want InvalidTransition", err)
	}
}

func TestExecuteRequiresThreshold(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA, ownerB}, threshold: 2, submitTx: "0xabc"}
	svc, _ := newTestService(t, gateway)
	createProposal(t, svc)
	ctx := context.Background()

	if _, err := svc.AddSignature(ctx, txHash, ownerA, []byte{0x01}); err != nil {
		t.Fatalf("AddSignature failed: %v", err)
	}

	_, err := svc.ExecuteTransaction(ctx, txHash, "0xsigned")
	if !types.HasCode(err, types.ErrorCodeInsufficientSignatures) {
		t.Fatalf("error = %v, want InsufficientSignatures", err)
	}
	if gateway.submitCalls != 0 {
		t.Error("insufficient signatures must not reach the chain")
	}
}

func TestExecuteSubmitsAndTransitions(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA, ownerB}, threshold: 1, submitTx: "0xabc123"}
	svc, _ := newTestService(t, gateway)
	createProposal(t, svc)
	ctx := context.Background()

	if _, err := svc.AddSignature(ctx, txHash, ownerA, []byte{0x01}); err != nil {
		t.Fatalf("AddSignature failed: %v", err)
	}

	txID, err := svc.ExecuteTransaction(ctx, txHash, "0xsigned")
	if err != nil {
		t.Fatalf("ExecuteTransaction failed: %v", err)
	}
	if txID != "0xabc123" {
		t.Errorf("txID = %q", txID)
	}

	record, err := svc.GetTransaction(txHash)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if record.Status != types.StatusExecuted {
		t.Errorf("status = %s, want executed", record.Status)
	}
	if record.OnChainTxID != "0xabc123" {
		t.Errorf("OnChainTxID = %q", record.OnChainTxID)
	}
	if record.ExecutedAt == nil {
		t.Error("ExecutedAt must be set on execution")
	}

	// 终态后重复执行被拒绝
	if _, err := svc.ExecuteTransaction(ctx, txHash, "0xsigned"); !types.HasCode(err, types.ErrorCodeInvalidTransition) {
		t.Errorf("re-execute error = %v, want InvalidTransition", err)
	}
}

// 未确认的回执不得迁移状态；确认成功才迁移
func TestConfirmExecution(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA}, threshold: 1, confirmed: false}
	svc, _ := newTestService(t, gateway)
	createProposal(t, svc)
	ctx := context.Background()

	confirmed, err := svc.ConfirmExecution(ctx, txHash, "0xabc")
	if err != nil {
		t.Fatalf("ConfirmExecution failed: %v", err)
	}
	if confirmed {
		t.Error("unconfirmed receipt reported as confirmed")
	}
	record, _ := svc.GetTransaction(txHash)
	if record.Status != types.StatusPending {
		t.Errorf("status = %s, must stay pending without on-chain confirmation", record.Status)
	}

	gateway.confirmed = true
	confirmed, err = svc.ConfirmExecution(ctx, txHash, "0xabc")
	if err != nil {
		t.Fatalf("ConfirmExecution failed: %v", err)
	}
	if !confirmed {
		t.Error("confirmed receipt reported as unconfirmed")
	}
	record, _ = svc.GetTransaction(txHash)
	if record.Status != types.StatusExecuted {
		t.Errorf("status = %s, want executed", record.Status)
	}
	if record.OnChainTxID != "0xabc" {
		t.Errorf("OnChainTxID = %q", record.OnChainTxID)
	}
}

func TestRejectTransaction(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA}, threshold: 1}
	svc, _ := newTestService(t, gateway)
	createProposal(t, svc)

	record, err := svc.RejectTransaction(txHash)
	if err != nil {
		t.Fatalf("RejectTransaction failed: %v", err)
	}
	if record.Status != types.StatusRejected {
		t.Errorf("status = %s, want rejected", record.Status)
	}

	// rejected 是终态
	if _, err := svc.RejectTransaction(txHash); !types.HasCode(err, types.ErrorCodeInvalidTransition) {
		t.Errorf("re-reject error = %v, want InvalidTransition", err)
	}
}

func TestReadinessUsesLiveOwners(t *testing.T) {
	gateway := &fakeGateway{owners: []common.Address{ownerA, ownerB}, threshold: 2}
	svc, st := newTestService(t, gateway)
	record := createProposal(t, svc)
	record.Signatures = []types.Signature{
		{Signer: ownerA, Bytes: []byte{0x01}, SignedAt: time.Now().UTC()},
		{Signer: stranger, Bytes: []byte{0x02}, SignedAt: time.Now().UTC()},
	}
	if err := st.Put(record); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	readiness, err := svc.Readiness(context.Background(), txHash)
	if err != nil {
		t.Fatalf("Readiness failed: %v", err)
	}
	// stranger 已不在 owner 集合，其签名不计数
	if readiness.Collected != 1 || readiness.Required != 2 || readiness.Ready {
		t.Errorf("readiness = %+v, want {1 2 false}", readiness)
	}
}
