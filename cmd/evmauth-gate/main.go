package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/layer-3/evmauth/adapters/chain"
	"github.com/layer-3/evmauth/adapters/events"
	"github.com/layer-3/evmauth/adapters/store"
	"github.com/layer-3/evmauth/core"
	"github.com/layer-3/evmauth/service"
	transporthttp "github.com/layer-3/evmauth/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && (args[0] == "serve" || args[0] == "revoke") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "revoke":
		err = revoke(args)
	default:
		err = serve(args)
	}
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		log.Fatalf("evmauth-gate %s: %v", cmd, err)
	}
}

func serve(args []string) error {
	s, err := loadSettings(os.Getenv)
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.StringVar(&s.Listen, "listen", s.Listen, "address to serve tool calls on")
	flags.StringVar(&s.PolicyPath, "policy", s.PolicyPath, "YAML file mapping tool names to required token ids")
	if err := flags.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if s.Gate.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	policy := core.DefaultPolicy()
	if s.PolicyPath != "" {
		if policy, err = core.LoadPolicy(s.PolicyPath); err != nil {
			return err
		}
	}

	// fail before dialing anything when the gate could never be built
	if err := s.Gate.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := newBackends(s.RedisURL, watermill.NewSlogLogger(logger))
	if err != nil {
		return err
	}
	defer backends.Close()
	if s.RedisURL == "" {
		logger.Warn("REDIS_URL is not set, revocations and decision events stay in process")
	}

	reader, ethClient, err := chain.Dial(ctx, s.Gate.RPCURL, s.Gate.Contract())
	if err != nil {
		return err
	}
	defer ethClient.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gate, err := service.NewGate(s.Gate, service.Options{
		Reader:      reader,
		Revocations: backends.revocations,
		Events:      events.NewWatermillPublisher(backends.publisher),
		Logger:      logger,
		Metrics:     service.NewMetrics(reg),
	})
	if err != nil {
		return err
	}
	defer gate.Oracle().Clear()

	server := transporthttp.NewToolServer(gate, policy, logger)
	if err := registerTools(server); err != nil {
		return err
	}
	if missing := server.Unregistered(); len(missing) > 0 {
		logger.Info("policy lists tools this server does not provide", "tools", missing)
	}

	httpServer := &http.Server{
		Addr:              s.Listen,
		Handler:           transporthttp.SetupRouter(server, transporthttp.RouterOptions{RateLimit: s.RateLimit, Gatherer: reg}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving tool calls", "listen", s.Listen, "chain_id", s.Gate.ChainID,
			"contract", s.Gate.ContractAddress, "tools", len(server.Tools()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// registerTools installs the tools served by the gate itself
func registerTools(server *transporthttp.ToolServer) error {
	if err := server.Register("ping", "Check that the server is reachable", func(ctx context.Context, req *core.Request) (*core.Result, error) {
		return core.TextResult("pong"), nil
	}); err != nil {
		return err
	}

	return server.Register("whoami", "Return the wallet the call was authorized for", func(ctx context.Context, req *core.Request) (*core.Result, error) {
		wallet, _ := service.WalletFromContext(ctx)
		body, err := json.Marshal(map[string]string{"wallet": wallet})
		if err != nil {
			return nil, err
		}
		return core.TextResult(string(body)), nil
	})
}

func revoke(args []string) error {
	var jti, redisURL string
	var ttl time.Duration

	flags := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
	flags.StringVar(&jti, "jti", "", "id of the bearer token to revoke")
	flags.StringVar(&redisURL, "redis-url", os.Getenv("REDIS_URL"), "Redis holding the shared revocation list")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "how long the revocation is kept, at least the token's remaining lifetime")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if jti == "" {
		return errors.New("--jti is required")
	}

	if redisURL == "" {
		return errors.New("--redis-url or REDIS_URL is required")
	}
	client, err := newRedisClient(redisURL)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.NewRedisStore(client, "").InvalidateToken(ctx, jti, ttl); err != nil {
		return err
	}
	fmt.Printf("revoked %s for %s\n", jti, ttl)
	return nil
}
