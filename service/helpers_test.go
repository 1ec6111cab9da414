package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/evmauth/adapters/tokenizer"
	"github.com/layer-3/evmauth/core"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0x9f2B42FB651b75CC3db4ef9FEd913A22BA4629Cf"
	testChainID  = 1223954
	testSecret   = "test-secret"
	testServer   = "risk-server"
)

func testConfig() core.Config {
	return core.Config{
		ContractAddress: testContract,
		ChainID:         testChainID,
		RPCURL:          "https://rpc.example.org",
		JWTSecret:       testSecret,
		Cache:           core.CacheConfig{TTL: time.Minute, MaxSize: 100},
		RPCTimeout:      time.Second,
	}
}

type wallet struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &wallet{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}
}

func (w *wallet) lower() string {
	return core.LowerHex(w.addr)
}

// proofDraft describes a proof before it is signed
type proofDraft struct {
	claims    *tokenizer.BearerClaims
	secret    string
	domain    core.Domain
	chainID   int64
	expiresAt time.Time
	message   core.Message
	types     core.Types
}

func (w *wallet) draft() *proofDraft {
	return &proofDraft{
		claims: &tokenizer.BearerClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   w.addr.Hex(),
				Audience:  jwt.ClaimStrings{testServer},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
				ID:        "jti-" + w.lower()[2:10],
			},
		},
		secret: testSecret,
		domain: core.Domain{
			Name:              core.DomainName,
			Version:           core.DomainVersion,
			ChainID:           testChainID,
			VerifyingContract: testContract,
		},
		chainID:   testChainID,
		expiresAt: time.Now().Add(5 * time.Minute),
		message: core.Message{
			ServerName:     testServer,
			ResourceName:   "analyzeContract",
			RequiredTokens: "[3]",
			Timestamp:      "1760000000000",
			Nonce:          "4f1c2a",
		},
		types: core.DefaultTypes(),
	}
}

// sign produces a proof from d signed by signer
func (d *proofDraft) sign(t *testing.T, signer *wallet) *core.Proof {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, d.claims).SignedString([]byte(d.secret))
	require.NoError(t, err)

	domain := d.domain
	message := d.message
	message.JWT = core.Text(token)
	ch := &core.Challenge{
		Domain:      &domain,
		PrimaryType: core.PrimaryType,
		Types:       d.types,
		Message:     &message,
	}

	hash, _, err := apitypes.TypedDataAndHash(TypedData(ch))
	require.NoError(t, err)
	sig, err := crypto.Sign(hash, signer.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	return &core.Proof{
		Challenge: ch,
		Signature: hexutil.Encode(sig),
		ChainID:   core.Number(d.chainID),
		ExpiresAt: core.Number(d.expiresAt.UnixMilli()),
	}
}

func (w *wallet) proof(t *testing.T) *core.Proof {
	return w.draft().sign(t, w)
}

// requestWith wraps proof in a tool call envelope at the standard location
func requestWith(t *testing.T, method string, proof any) *core.Request {
	t.Helper()
	raw, err := json.Marshal(proof)
	require.NoError(t, err)
	return &core.Request{
		Params: &core.Params{
			Name:      method,
			Arguments: map[string]json.RawMessage{core.ArgProof: raw},
		},
	}
}

var errRPC = errors.New("rpc unavailable")

// fakeReader serves balances from memory and counts queries
type fakeReader struct {
	mu       sync.Mutex
	balances map[common.Address]map[core.TokenID]int64

	singleCalls atomic.Int32
	batchCalls  atomic.Int32

	singleErr error
	batchErr  error
	panics    bool

	// when set, BalanceOf signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{balances: make(map[common.Address]map[core.TokenID]int64)}
}

func (f *fakeReader) give(addr common.Address, id core.TokenID, amount int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[addr] == nil {
		f.balances[addr] = make(map[core.TokenID]int64)
	}
	f.balances[addr][id] = amount
}

func (f *fakeReader) balance(addr common.Address, id core.TokenID) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return big.NewInt(f.balances[addr][id])
}

func (f *fakeReader) BalanceOf(ctx context.Context, addr common.Address, id core.TokenID) (*big.Int, error) {
	f.singleCalls.Add(1)
	if f.panics {
		panic("reader exploded")
	}
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
		<-f.release
	}
	if f.singleErr != nil {
		return nil, f.singleErr
	}
	return f.balance(addr, id), nil
}

func (f *fakeReader) BalanceOfBatch(ctx context.Context, addr common.Address, ids []core.TokenID) ([]*big.Int, error) {
	f.batchCalls.Add(1)
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]*big.Int, len(ids))
	for i, id := range ids {
		out[i] = f.balance(addr, id)
	}
	return out, nil
}

// fakePublisher records decisions
type fakePublisher struct {
	mu        sync.Mutex
	decisions []core.Decision
	err       error
}

func (p *fakePublisher) PublishDecision(ctx context.Context, d core.Decision) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, d)
	return p.err
}

func (p *fakePublisher) all() []core.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.Decision(nil), p.decisions...)
}

// denialOf decodes the {"error": ...} payload of a denial result
func denialOf(t *testing.T, res *core.Result) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	var body struct {
		Error map[string]any `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &body))
	require.NotNil(t, body.Error, "result is not a denial: %s", res.Content[0].Text)
	return body.Error
}
