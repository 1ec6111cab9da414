package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/layer-3/evmauth/core"
	"github.com/layer-3/evmauth/ports"
)

// Verifier checks proofs against the gate configuration
type Verifier struct {
	cfg         core.Config
	bearer      ports.BearerValidator
	revocations ports.Store
	logger      *slog.Logger
	now         func() time.Time
}

// NewVerifier creates a verifier. revocations may be nil
func NewVerifier(cfg core.Config, bearer ports.BearerValidator, revocations ports.Store, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		cfg:         cfg,
		bearer:      bearer,
		revocations: revocations,
		logger:      logger,
		now:         time.Now,
	}
}

// Verify checks a signed proof and returns the lower-cased signer address. The
// first failing check determines the error's reason; failures that carry no
// reason of their own are reported as SIGNATURE_INVALID
func (v *Verifier) Verify(ctx context.Context, proof *core.Proof) (wallet string, err error) {
	defer func() {
		if r := recover(); r != nil {
			wallet = ""
			err = &core.VerificationError{
				Reason:  core.ReasonSignatureInvalid,
				Message: "signature verification failed",
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
	}()

	wallet, err = v.verify(ctx, proof)
	if err != nil && core.ReasonOf(err, "") == "" {
		err = &core.VerificationError{Reason: core.ReasonSignatureInvalid, Message: "signature verification failed", Err: err}
	}
	return wallet, err
}

func (v *Verifier) verify(ctx context.Context, proof *core.Proof) (string, error) {
	if err := validateStructure(proof); err != nil {
		return "", err
	}

	if !v.now().Before(proof.Expiry()) {
		return "", core.NewVerificationError(core.ReasonProofExpired, "proof has expired")
	}

	if chainID := proof.EffectiveChainID(); chainID != v.cfg.ChainID {
		return "", core.NewVerificationError(core.ReasonChainMismatch,
			"chain id mismatch: expected %d, got %d", v.cfg.ChainID, chainID)
	}

	domain := proof.Challenge.Domain
	if domain.Name != core.DomainName || domain.Version != core.DomainVersion {
		return "", core.NewVerificationError(core.ReasonDomainMismatch, "invalid domain name or version")
	}
	if int64(domain.ChainID) != v.cfg.ChainID {
		return "", core.NewVerificationError(core.ReasonDomainMismatch,
			"domain chain id mismatch: expected %d, got %d", v.cfg.ChainID, domain.ChainID)
	}
	if !v.cfg.SameContract(domain.VerifyingContract) {
		return "", core.NewVerificationError(core.ReasonDomainMismatch,
			"domain contract mismatch: expected %s, got %s", v.cfg.ContractAddress, domain.VerifyingContract)
	}

	signer, err := RecoverSigner(proof.Challenge, proof.Signature)
	if err != nil {
		return "", &core.VerificationError{Reason: core.ReasonSignatureInvalid, Message: "signature verification failed", Err: err}
	}
	recovered := core.LowerHex(signer)

	message := proof.Challenge.Message
	claims, err := v.bearer.Validate(string(message.JWT), string(message.ServerName))
	if err != nil {
		if core.ReasonOf(err, "") == "" {
			return "", &core.VerificationError{Reason: core.ReasonJWTInvalid, Message: "JWT verification failed", Err: err}
		}
		return "", err
	}

	if claims.Wallet != recovered {
		return "", core.NewVerificationError(core.ReasonJWTSubjectMismatch, "JWT wallet address does not match signature signer")
	}

	if scope := claims.Scope; scope != nil {
		if scope.ChainID != v.cfg.ChainID {
			return "", core.NewVerificationError(core.ReasonJWTInvalid, "JWT chain id mismatch")
		}
		if !v.cfg.SameContract(scope.ContractAddress) {
			return "", core.NewVerificationError(core.ReasonJWTInvalid, "JWT contract address mismatch")
		}
	}

	if v.revocations != nil && claims.ID != "" {
		revoked, err := v.revocations.IsTokenInvalidated(ctx, claims.ID)
		if err != nil {
			return "", &core.VerificationError{Reason: core.ReasonJWTInvalid, Message: "JWT revocation check failed", Err: err}
		}
		if revoked {
			return "", &core.VerificationError{Reason: core.ReasonJWTInvalid, Message: "JWT has been revoked", Err: core.ErrTokenRevoked}
		}
	}

	return recovered, nil
}

// VerifyDev accepts a development proof: only the wallet address is checked
func (v *Verifier) VerifyDev(proof *core.Proof) (string, error) {
	if !v.cfg.DevMode {
		return "", core.NewVerificationError(core.ReasonProofInvalid, "dev mode proof provided but dev mode is not enabled")
	}
	if proof == nil {
		return "", core.NewVerificationError(core.ReasonProofInvalid, "invalid wallet address in dev proof")
	}
	addr, err := core.ParseAddress(proof.WalletAddress)
	if err != nil {
		return "", &core.VerificationError{Reason: core.ReasonProofInvalid, Message: "invalid wallet address in dev proof", Err: err}
	}

	wallet := core.LowerHex(addr)
	if v.cfg.Debug {
		v.logger.Debug("using dev mode proof", "wallet", core.Redact(wallet))
	}
	return wallet, nil
}

func validateStructure(proof *core.Proof) error {
	if proof == nil {
		return core.NewVerificationError(core.ReasonProofInvalid, "invalid proof format")
	}
	if proof.Challenge == nil || proof.Signature == "" || proof.ExpiresAt == 0 {
		return core.NewVerificationError(core.ReasonProofInvalid, "missing required proof fields")
	}
	if proof.EffectiveChainID() == 0 {
		return core.NewVerificationError(core.ReasonProofInvalid, "missing chainId in proof")
	}
	if !strings.HasPrefix(proof.Signature, "0x") {
		return core.NewVerificationError(core.ReasonProofInvalid, "invalid signature format")
	}
	sig, err := hexutil.Decode(proof.Signature)
	if err != nil {
		return &core.VerificationError{Reason: core.ReasonProofInvalid, Message: "invalid signature format", Err: err}
	}
	if len(sig) != crypto.SignatureLength {
		return core.NewVerificationError(core.ReasonProofInvalid, "invalid signature length")
	}

	ch := proof.Challenge
	if ch.Domain == nil || len(ch.Types) == 0 || ch.PrimaryType == "" || ch.Message == nil {
		return core.NewVerificationError(core.ReasonProofInvalid, "invalid challenge structure")
	}
	if !ch.Message.Complete() {
		return core.NewVerificationError(core.ReasonProofInvalid, "challenge message missing required fields")
	}
	return nil
}

// TypedData converts a challenge into EIP-712 typed data
func TypedData(ch *core.Challenge) apitypes.TypedData {
	types := make(apitypes.Types, len(ch.Types))
	for name, fields := range ch.Types {
		converted := make([]apitypes.Type, len(fields))
		for i, f := range fields {
			converted[i] = apitypes.Type{Name: f.Name, Type: f.Type}
		}
		types[name] = converted
	}

	return apitypes.TypedData{
		Types:       types,
		PrimaryType: ch.PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              ch.Domain.Name,
			Version:           ch.Domain.Version,
			ChainId:           math.NewHexOrDecimal256(int64(ch.Domain.ChainID)),
			VerifyingContract: ch.Domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage(ch.Message.Map()),
	}
}

// RecoverSigner returns the address that produced signature over the challenge
func RecoverSigner(ch *core.Challenge, signature string) (common.Address, error) {
	hash, _, err := apitypes.TypedDataAndHash(TypedData(ch))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to hash typed data: %w", err)
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	// wallets produce v as 27/28, SigToPub expects 0/1
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
