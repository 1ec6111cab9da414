package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/evmauth/adapters/store"
	"github.com/layer-3/evmauth/adapters/tokenizer"
	"github.com/layer-3/evmauth/core"
	"github.com/layer-3/evmauth/ports"
)

// Carrier is implemented by request types that expose the proof envelope
type Carrier interface {
	Envelope() *core.Request
}

// Handler handles one call
type Handler[Req any, Resp any] func(ctx context.Context, req Req) (Resp, error)

// ToolHandler is a handler over the tool call envelope and result
type ToolHandler = Handler[*core.Request, *core.Result]

// Options are the collaborators of a Gate. Reader is required
type Options struct {
	Reader      ports.BalanceReader
	Bearer      ports.BearerValidator // defaults to HS256 with the configured secret
	Revocations ports.Store           // optional bearer token revocation list
	Events      ports.EventPublisher  // optional decision audit trail
	Cache       *store.TokenCache     // defaults to a cache built from the config
	Logger      *slog.Logger
	Metrics     *Metrics
}

// Gate authorizes calls to protected handlers
type Gate struct {
	cfg       core.Config
	extractor *Extractor
	verifier  *Verifier
	oracle    *Oracle
	events    ports.EventPublisher
	logger    *slog.Logger
	metrics   *Metrics
}

// NewGate validates cfg and assembles the gate. An invalid configuration
// fails with core.ErrInvalidConfig
func NewGate(cfg core.Config, opts Options) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Reader == nil {
		return nil, fmt.Errorf("%w: balance reader is required", core.ErrInvalidConfig)
	}
	cfg = cfg.WithDefaults()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bearer := opts.Bearer
	if bearer == nil {
		bearer = tokenizer.NewHMACValidator(cfg.JWTSecret, cfg.JWTIssuer, cfg.ExpectedAudience)
	}
	cache := opts.Cache
	if cache == nil {
		cache = store.NewTokenCache(cfg.Cache)
	}

	if cfg.DevMode {
		logger.Warn("EVMAuth gate is running in DEVELOPMENT MODE: cryptographic proof validation is DISABLED, token ownership checks are still enforced. Never use this in production.")
	}

	return &Gate{
		cfg:       cfg,
		extractor: NewExtractor(cfg.DevMode),
		verifier:  NewVerifier(cfg, bearer, opts.Revocations, logger),
		oracle:    NewOracle(opts.Reader, cache, cfg, logger, opts.Metrics),
		events:    opts.Events,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Config returns the validated configuration
func (g *Gate) Config() core.Config {
	return g.cfg
}

// Oracle returns the token ownership oracle
func (g *Gate) Oracle() *Oracle {
	return g.oracle
}

// Protect wraps a tool handler so it only runs for callers owning any of tokenIDs
func (g *Gate) Protect(tokenIDs []core.TokenID, h ToolHandler) ToolHandler {
	return Protect(g, tokenIDs, h, (*Denial).Result)
}

// Protect wraps h so it runs only after the caller's proof is verified and the
// proven wallet owns at least one of tokenIDs. Denials are rendered with deny
// and returned in place of h's output. A nil gate or an empty token list
// leaves h unprotected. A panic in h is converted to a denial like any other
// unexpected fault; errors returned by h pass through
func Protect[Req Carrier, Resp any](g *Gate, tokenIDs []core.TokenID, h Handler[Req, Resp], deny func(*Denial) Resp) Handler[Req, Resp] {
	if g == nil || len(tokenIDs) == 0 {
		return h
	}
	ids := append([]core.TokenID(nil), tokenIDs...)

	return func(ctx context.Context, req Req) (resp Resp, err error) {
		wallet, denial := g.authorize(ctx, req.Envelope(), ids)
		if denial != nil {
			return deny(denial), nil
		}

		defer func() {
			if r := recover(); r != nil {
				decision := core.Decision{Method: methodOf(req.Envelope()), TokenIDs: ids, Wallet: wallet}
				resp, err = deny(g.unexpected(fmt.Errorf("handler panic: %v", r), &decision)), nil
				g.record(ctx, decision)
			}
		}()
		return h(ContextWithWallet(ctx, wallet), req)
	}
}

// authorize runs extraction, verification and the ownership check. On success
// wallet is set and denial is nil
func (g *Gate) authorize(ctx context.Context, req *core.Request, ids []core.TokenID) (wallet string, denial *Denial) {
	decision := core.Decision{Method: methodOf(req), TokenIDs: ids}
	defer func() {
		if r := recover(); r != nil {
			wallet = ""
			denial = g.unexpected(fmt.Errorf("panic: %v", r), &decision)
		}
		g.record(ctx, decision)
	}()

	proof, err := g.extractor.Extract(req)
	if err != nil {
		return "", g.rejectProof(core.ReasonOf(err, core.ReasonProofMalformed), &decision)
	}
	if proof == nil {
		return "", g.rejectProof(core.ReasonProofMissing, &decision)
	}

	if g.cfg.DevMode && proof.IsDev() {
		decision.DevMode = true
		wallet, err = g.verifier.VerifyDev(proof)
	} else {
		wallet, err = g.verifier.Verify(ctx, proof)
	}
	if err != nil {
		if g.cfg.Debug {
			g.logger.Debug("proof rejected", "method", decision.Method, "error", err)
		}
		return "", g.rejectProof(core.ReasonOf(err, core.ReasonSignatureInvalid), &decision)
	}
	decision.Wallet = wallet

	owned, err := g.oracle.CheckAccess(ctx, common.HexToAddress(wallet), ids)
	if err != nil {
		return "", g.unexpected(err, &decision)
	}
	if !owned {
		decision.Outcome = core.OutcomePaymentRequired
		return "", PaymentRequired(ids, g.cfg, wallet)
	}

	decision.Outcome = core.OutcomeGranted
	return wallet, nil
}

func (g *Gate) rejectProof(reason core.Reason, decision *core.Decision) *Denial {
	decision.Outcome = core.OutcomeProofRejected
	decision.Reason = reason
	return ProofRequired(reason, g.cfg)
}

// unexpected converts a fault that escaped the pipeline into a denial
func (g *Gate) unexpected(err error, decision *core.Decision) *Denial {
	if g.cfg.Debug {
		g.logger.Error("unexpected authorization error",
			"method", decision.Method, "wallet", core.Redact(decision.Wallet), "error", err)
	}
	if isNetworkFault(err) {
		decision.Outcome = core.OutcomeNetworkError
		decision.Reason = ""
		return NetworkError(g.cfg)
	}
	return g.rejectProof(core.ReasonProofMalformed, decision)
}

func (g *Gate) record(ctx context.Context, decision core.Decision) {
	decision.At = time.Now().UTC()
	g.metrics.decision(decision.Outcome, decision.Reason)
	if g.events == nil {
		return
	}
	if err := g.events.PublishDecision(ctx, decision); err != nil {
		g.logger.Warn("failed to publish access decision", "outcome", decision.Outcome, "error", err)
	}
}

func methodOf(req *core.Request) string {
	if req == nil {
		return ""
	}
	if req.Params != nil && req.Params.Name != "" {
		return req.Params.Name
	}
	return req.Method
}

func isNetworkFault(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "network") || strings.Contains(msg, "timeout")
}

type walletKey struct{}

// ContextWithWallet returns ctx carrying the authorized wallet
func ContextWithWallet(ctx context.Context, wallet string) context.Context {
	return context.WithValue(ctx, walletKey{}, wallet)
}

// WalletFromContext returns the wallet authorized for the current call
func WalletFromContext(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(walletKey{}).(string)
	return wallet, ok && wallet != ""
}
