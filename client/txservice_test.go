package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safecoord/coordinator-sdk-go/types"
)

func sampleDocument() *types.TransferDocument {
	return &types.TransferDocument{
		Version:     types.DocumentVersion,
		ChainID:     "1",
		SafeTxHash:  "0x00000000000000000000000000000000000000000000000000000000000000aa",
		SafeAddress: testSafe.Hex(),
		Transaction: types.DocumentTransaction{
			To:    ownerA.Hex(),
			Value: "1000",
			Nonce: 0,
		},
		CreatedBy: ownerA.Hex(),
		CreatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Format(time.RFC3339),
	}
}

func newTestTxService(t *testing.T, handler http.Handler) TxService {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewTxService(server.URL, &Config{Timeout: 5, Retry: fastRetry()})
}

func TestListProposals(t *testing.T) {
	svc := newTestTxService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/api/v1/safes/" + testSafe.Hex() + "/proposals/"
		if r.Method != http.MethodGet || r.URL.Path != wantPath {
			t.Errorf("request = %s %s, want GET %s", r.Method, r.URL.Path, wantPath)
		}
		if r.URL.Query().Get("chainId") != "1" {
			t.Errorf("chainId = %q", r.URL.Query().Get("chainId"))
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []*types.TransferDocument{sampleDocument()},
		})
	}))

	docs, err := svc.ListProposals(context.Background(), testSafe.Hex(), "1")
	if err != nil {
		t.Fatalf("ListProposals failed: %v", err)
	}
	if len(docs) != 1 || docs[0].SafeAddress != testSafe.Hex() {
		t.Errorf("docs = %+v", docs)
	}
}

func TestProposeTransaction(t *testing.T) {
	var received types.TransferDocument
	svc := newTestTxService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body failed: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	doc := sampleDocument()
	if err := svc.ProposeTransaction(context.Background(), doc); err != nil {
		t.Fatalf("ProposeTransaction failed: %v", err)
	}
	if received.SafeTxHash != doc.SafeTxHash {
		t.Errorf("uploaded hash = %q", received.SafeTxHash)
	}
}

func TestAddSignaturesBody(t *testing.T) {
	var body struct {
		Signatures []types.DocumentSignature `json:"signatures"`
	}
	svc := newTestTxService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body failed: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))

	sigs := []types.DocumentSignature{{Signer: ownerA.Hex(), Signature: "0x0102"}}
	if err := svc.AddSignatures(context.Background(), "0xaa", sigs); err != nil {
		t.Fatalf("AddSignatures failed: %v", err)
	}
	if len(body.Signatures) != 1 || body.Signatures[0].Signer != ownerA.Hex() {
		t.Errorf("uploaded signatures = %+v", body.Signatures)
	}
}

// 4xx 是最终失败，不得重试
func TestTxServiceClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	svc := newTestTxService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "proposal already exists", http.StatusConflict)
	}))

	err := svc.ProposeTransaction(context.Background(), sampleDocument())
	if err == nil {
		t.Fatal("expected error")
	}
	if types.HasCode(err, types.ErrorCodeNetworkError) {
		t.Error("4xx must not map to NetworkError")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on 4xx)", got)
	}
}

// 5xx 重试耗尽后映射为 NetworkError
func TestTxServiceServerErrorMapsToNetworkError(t *testing.T) {
	var calls atomic.Int32
	svc := newTestTxService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))

	_, err := svc.ListProposals(context.Background(), testSafe.Hex(), "1")
	if !types.HasCode(err, types.ErrorCodeNetworkError) {
		t.Fatalf("error = %v, want NetworkError", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d calls, want 3 (retries exhausted)", got)
	}
}
