package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gridlelabs/vaultd/internal/bank"
	"github.com/gridlelabs/vaultd/internal/chain"
	"github.com/gridlelabs/vaultd/internal/config"
	"github.com/gridlelabs/vaultd/internal/gridle"
	"github.com/gridlelabs/vaultd/internal/inventory"
	"github.com/gridlelabs/vaultd/internal/journal"
	"github.com/gridlelabs/vaultd/internal/reserve"
	"github.com/gridlelabs/vaultd/internal/retrodrop"
	"github.com/gridlelabs/vaultd/internal/server"
	"github.com/gridlelabs/vaultd/internal/voucher"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Chain payout client (custody key) ─────────────────────────────────────
	payer, err := chain.NewClient(cfg.Chain.RPCURL, cfg.Chain.CustodyKey, cfg.Chain.ChainID, log)
	if err != nil {
		log.Fatal("chain client init failed", zap.Error(err))
	}
	log.Info("custody address", zap.String("from", payer.From().Hex()))

	jnl := journal.New(rdb, log)
	signer := common.HexToAddress(cfg.Vault.SignerAddress)
	admin := common.HexToAddress(cfg.Vault.AdminAddress)

	// ── Vaults ────────────────────────────────────────────────────────────────
	// Each vault gets its own authority instance: replacing one vault's
	// signer must not touch the others.
	bankVault := bank.New("bank", common.HexToAddress(cfg.Vault.BankAddress), admin,
		voucher.NewECDSAAuthority(signer), payer, jnl, log,
		bank.WithReservePolicy(reserve.NewPolicy()))

	gridVault := gridle.New("gridle", common.HexToAddress(cfg.Vault.GridleAddress), admin,
		voucher.NewECDSAAuthority(signer), reserve.NewPolicy(), payer, jnl, log)

	escrow := retrodrop.NewTimeLock(common.HexToAddress(cfg.Vault.DropToken), payer)
	dropVault := retrodrop.New("retrodrop", common.HexToAddress(cfg.Vault.RetroDropAddress), admin,
		common.HexToAddress(cfg.Vault.DropToken), cfg.Vault.DropMaxWeeks,
		voucher.NewECDSAAuthority(signer), escrow, payer, jnl, log)

	invVault := inventory.New("inventory", common.HexToAddress(cfg.Vault.InventoryAddress), admin,
		voucher.NewECDSAAuthority(signer), jnl, log)

	// ── HTTP ──────────────────────────────────────────────────────────────────
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	srv := server.New(bankVault, gridVault, dropVault, invVault, escrow, log)
	srv.Register(engine, server.CallerAuth(rdb))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		log.Info("vaultd listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	// ── Shutdown ──────────────────────────────────────────────────────────────
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	cancel()
}
