package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contract = "0x9f2B42FB651b75CC3db4ef9FEd913A22BA4629Cf"

func validConfig() Config {
	return Config{
		ContractAddress: contract,
		ChainID:         1223954,
		RPCURL:          "https://rpc.example.org",
		JWTSecret:       "secret",
	}
}

func TestIsAddress(t *testing.T) {
	tcs := []struct {
		in   string
		want bool
	}{
		{contract, true},
		{"0x9f2b42fb651b75cc3db4ef9fed913a22ba4629cf", true},
		{"0x9F2B42FB651B75CC3DB4EF9FED913A22BA4629CF", true},
		{"0x9f2B42FB651b75CC3db4ef9FEd913A22BA4629CF", false}, // bad checksum
		{"9f2b42fb651b75cc3db4ef9fed913a22ba4629cf", false},
		{"0x9f2b42fb651b75cc3db4ef9fed913a22ba4629", false},
		{"0xzz2b42fb651b75cc3db4ef9fed913a22ba4629cf", false},
		{"", false},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.want, IsAddress(tc.in), tc.in)
	}

	_, err := ParseAddress("nope")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "0x9f2b42fb...", Redact("0x9f2b42fb651b75cc3db4ef9fed913a22ba4629cf"))
	assert.Equal(t, "0x12", Redact("0x12"))
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tcs := map[string]func(*Config){
		"contract":   func(c *Config) { c.ContractAddress = "0x123" },
		"chain zero": func(c *Config) { c.ChainID = 0 },
		"chain neg":  func(c *Config) { c.ChainID = -5 },
		"rpc":        func(c *Config) { c.RPCURL = "not a url" },
		"rpc host":   func(c *Config) { c.RPCURL = "https://" },
		"secret":     func(c *Config) { c.JWTSecret = "" },
	}
	for name, mutate := range tcs {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := validConfig().WithDefaults()
	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, DefaultCacheMaxSize, cfg.Cache.MaxSize)
	assert.Equal(t, DefaultRPCTimeout, cfg.RPCTimeout)

	assert.True(t, cfg.SameContract("0x9f2b42fb651b75cc3db4ef9fed913a22ba4629cf"))
	assert.False(t, cfg.SameContract("0x0000000000000000000000000000000000000001"))
}

func TestNumberDecoding(t *testing.T) {
	tcs := []struct {
		in      string
		want    Number
		wantErr bool
	}{
		{in: `1223954`, want: 1223954},
		{in: `"1223954"`, want: 1223954},
		{in: `"0x12ad12"`, want: 0x12ad12},
		{in: `1.76e12`, want: 1760000000000},
		{in: `-3`, want: -3},
		{in: `null`, want: 0},
		{in: `1.5`, wantErr: true},
		{in: `"notanint"`, wantErr: true},
		{in: `{"a":1}`, wantErr: true},
	}
	for _, tc := range tcs {
		var n Number
		err := json.Unmarshal([]byte(tc.in), &n)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, n, tc.in)
	}
}

func TestTextDecoding(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{
		"serverName": "risk",
		"resourceName": "ping",
		"requiredTokens": "[1]",
		"jwt": "a.b.c",
		"timestamp": 1760000000000,
		"nonce": true
	}`), &m))
	assert.Equal(t, Text("1760000000000"), m.Timestamp)
	assert.Equal(t, Text("true"), m.Nonce)
	assert.True(t, m.Complete())

	assert.Error(t, json.Unmarshal([]byte(`{"nonce": {"x": 1}}`), &m))
}

func TestProofHelpers(t *testing.T) {
	p := &Proof{ExpiresAt: 1760000000000, Challenge: &Challenge{Domain: &Domain{ChainID: 7}}}
	assert.Equal(t, int64(7), p.EffectiveChainID())
	p.ChainID = 9
	assert.Equal(t, int64(9), p.EffectiveChainID())
	assert.Equal(t, time.UnixMilli(1760000000000), p.Expiry())
	assert.False(t, p.IsDev())

	assert.True(t, (&Proof{WalletAddress: "0xabc"}).IsDev())
	assert.True(t, (&Proof{Mode: ModeDev}).IsDev())
	assert.False(t, (&Proof{WalletAddress: "0xabc", Signature: "0x00"}).IsDev())
}

func TestRequestArguments(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{
		"method": "tools/call",
		"params": {"name": "whoami", "arguments": {"_evmauthProof": {}, "_evmauthWallet": "0x1", "q": 1}}
	}`), &req))

	assert.Same(t, &req, req.Envelope())
	assert.JSONEq(t, `{}`, string(req.Argument(ArgProof)))
	assert.Equal(t, map[string]json.RawMessage{"q": json.RawMessage(`1`)}, req.UserArguments())

	var empty *Request
	assert.Nil(t, empty.Argument(ArgProof))
	assert.Empty(t, empty.UserArguments())
}

func TestReasonOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewVerificationError(ReasonJWTExpired, "token expired"))
	assert.Equal(t, ReasonJWTExpired, ReasonOf(err, ReasonProofMalformed))
	assert.Equal(t, ReasonProofMalformed, ReasonOf(errors.New("plain"), ReasonProofMalformed))
	assert.Equal(t, ReasonProofMalformed, ReasonOf(&VerificationError{Reason: "BOGUS"}, ReasonProofMalformed))

	cause := errors.New("cause")
	verr := &VerificationError{Reason: ReasonJWTInvalid, Message: "bad", Err: cause}
	assert.ErrorIs(t, verr, cause)
	assert.Equal(t, "JWT_INVALID: bad: cause", verr.Error())

	for _, r := range Reasons {
		assert.True(t, r.Valid())
	}
}

func TestParseTokenIDs(t *testing.T) {
	ids, err := ParseTokenIDs("1, 3,,5")
	require.NoError(t, err)
	assert.Equal(t, []TokenID{1, 3, 5}, ids)

	_, err = ParseTokenIDs("1,x")
	assert.ErrorIs(t, err, ErrInvalidTokenID)

	assert.Equal(t, "Basic", TierName(1))
	assert.Equal(t, "Premium", TierName(3))
	assert.Equal(t, "Pro", TierName(5))
	assert.Equal(t, "Free", TierName(2))
	assert.Equal(t, "18446744073709551615", TokenID(^uint64(0)).BigInt().String())
}

func TestPolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`
ping: null
whoami: 1
analyzeContract: [3, 5]
`))
	require.NoError(t, err)
	assert.False(t, p.IsProtected("ping"))
	assert.Equal(t, []TokenID{1}, p.Required("whoami"))
	assert.Equal(t, []TokenID{3, 5}, p.Required("analyzeContract"))
	assert.Nil(t, p.Required("unknown"))
	assert.Equal(t, []string{"analyzeContract", "ping", "whoami"}, p.Methods())

	_, err = ParsePolicy([]byte(`whoami: abc`))
	assert.ErrorIs(t, err, ErrInvalidTokenID)

	_, err = ParsePolicy([]byte(`whoami: {a: 1}`))
	assert.ErrorIs(t, err, ErrInvalidTokenID)

	def := DefaultPolicy()
	assert.Equal(t, []TokenID{5}, def.Required("analyzeUrl"))
	assert.False(t, def.IsProtected("ping"))
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analyzeUrl: 5\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, Policy{"analyzeUrl": {5}}, p)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
