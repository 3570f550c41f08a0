// Package server exposes the vaults over HTTP. Voucher endpoints are open:
// the signed voucher itself is the capability. Role-gated endpoints sit
// behind the EIP-191 caller-auth middleware and the vault's own role check.
package server

import (
	"context"
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gridlelabs/vaultd/internal/bank"
	"github.com/gridlelabs/vaultd/internal/gridle"
	"github.com/gridlelabs/vaultd/internal/inventory"
	"github.com/gridlelabs/vaultd/internal/ledger"
	"github.com/gridlelabs/vaultd/internal/reserve"
	"github.com/gridlelabs/vaultd/internal/retrodrop"
	"github.com/gridlelabs/vaultd/internal/voucher"
)

type Server struct {
	bank   *bank.Vault
	grid   *gridle.Vault
	drop   *retrodrop.Vault
	inv    *inventory.Vault
	escrow *retrodrop.TimeLock
	log    *zap.Logger
}

func New(b *bank.Vault, g *gridle.Vault, d *retrodrop.Vault, i *inventory.Vault,
	escrow *retrodrop.TimeLock, log *zap.Logger) *Server {
	return &Server{bank: b, grid: g, drop: d, inv: i, escrow: escrow, log: log}
}

// Register mounts all routes. callerAuth protects the role-gated group.
func (s *Server) Register(r *gin.Engine, callerAuth gin.HandlerFunc) {
	r.Use(Latency())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")

	// ── Voucher-bearing operations (open) ──────────────────────────────────
	v1.POST("/bank/deposit", s.handleBankDeposit)
	v1.POST("/bank/claim", s.handleBankClaim)
	v1.POST("/gridle/deposit", s.handleGridleDeposit)
	v1.POST("/gridle/use", s.handleGridleUse)
	v1.POST("/retrodrop/claim", s.handleDropClaim)
	v1.POST("/inventory/claim", s.handleItem(s.inv.Claim))
	v1.POST("/inventory/use", s.handleItem(s.inv.Use))
	v1.POST("/inventory/claim-batch", s.handleItemBatch)

	// ── Reads ──────────────────────────────────────────────────────────────
	v1.GET("/bank/balance/:asset", s.handleBankBalance)
	v1.GET("/bank/deposit/:account/:asset", s.handleBankDepositOf)
	v1.GET("/retrodrop/positions/:account", s.handleDropPositions)

	// ── Role-gated operations ──────────────────────────────────────────────
	gated := v1.Group("", callerAuth)
	gated.POST("/bank/refund", s.handleBankRefund)
	gated.POST("/bank/withdraw", s.handleBankWithdraw)
	gated.POST("/bank/send", s.handleBankSend)
	gated.POST("/bank/roles/grant", s.handleBankGrant)
	gated.POST("/bank/roles/revoke", s.handleBankRevoke)
	gated.POST("/bank/limits", s.handleBankLimit)
	gated.POST("/bank/reserve", s.handleBankReserve)
	gated.POST("/gridle/withdraw", s.handleGridleWithdraw)
	gated.POST("/gridle/reserve", s.handleGridleReserve)
	gated.POST("/retrodrop/release", s.handleDropRelease)
}

func caller(c *gin.Context) common.Address {
	return common.HexToAddress(c.GetString("caller_address"))
}

// fail maps an operation error to an HTTP response.
func (s *Server) fail(c *gin.Context, err error) {
	var oe *ledger.OpError
	if errors.As(err, &oe) {
		c.JSON(statusFor(oe.Code), gin.H{"code": oe.Code, "error": oe.Error()})
		return
	}
	s.log.Error("operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func statusFor(code ledger.Code) int {
	switch code {
	case ledger.CodeZeroAddress, ledger.CodeZeroValue, ledger.CodeArraysLengthMismatch,
		ledger.CodeInvalidLockWeeks, ledger.CodeMinCoefficientTooLow, ledger.CodeInvalidCoefficients:
		return http.StatusBadRequest
	case ledger.CodeWrongSignature, ledger.CodeDeadlineExpired:
		return http.StatusUnauthorized
	case ledger.CodeUnauthorized:
		return http.StatusForbidden
	case ledger.CodeOrderProcessed, ledger.CodeSignIDUsed:
		return http.StatusConflict
	case ledger.CodeInsufficientBalance, ledger.CodeNotEnoughFee,
		ledger.CodeExceedsTokenLimit, ledger.CodeInvalidRefundAmount:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// ── Bank ───────────────────────────────────────────────────────────────────

func (s *Server) handleBankDeposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := req.voucher()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.Deposit(c.Request.Context(), d); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deposited", "balance": s.bank.Balance(d.Token).String()})
}

func (s *Server) handleBankClaim(c *gin.Context) {
	var req claimReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cl, err := req.voucher()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.Claim(c.Request.Context(), cl); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed"})
}

func (s *Server) handleBankBalance(c *gin.Context) {
	asset := common.HexToAddress(c.Param("asset"))
	c.JSON(http.StatusOK, gin.H{"asset": asset.Hex(), "balance": s.bank.Balance(asset).String()})
}

func (s *Server) handleBankDepositOf(c *gin.Context) {
	account := common.HexToAddress(c.Param("account"))
	asset := common.HexToAddress(c.Param("asset"))
	c.JSON(http.StatusOK, gin.H{"deposit": s.bank.DepositOf(account, asset).String()})
}

func (s *Server) handleBankRefund(c *gin.Context) {
	var req refundReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseBig(req.Amount, "amount")
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.Refund(c.Request.Context(), caller(c),
		common.HexToAddress(req.Account), common.HexToAddress(req.Asset), amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

func (s *Server) handleBankWithdraw(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseBig(req.Amount, "amount")
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.Withdraw(c.Request.Context(), caller(c),
		common.HexToAddress(req.Asset), common.HexToAddress(req.To), amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (s *Server) handleBankSend(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseBig(req.Amount, "amount")
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.SendToken(c.Request.Context(), caller(c),
		common.HexToAddress(req.Asset), common.HexToAddress(req.To), amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (s *Server) handleBankGrant(c *gin.Context) {
	var req roleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.GrantRole(caller(c), ledger.Role(req.Role), common.HexToAddress(req.Address)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "granted"})
}

func (s *Server) handleBankRevoke(c *gin.Context) {
	var req roleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.RevokeRole(caller(c), ledger.Role(req.Role), common.HexToAddress(req.Address)); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (s *Server) handleBankLimit(c *gin.Context) {
	var req limitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	limit, err := parseBig(req.Limit, "limit")
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.SetSendLimit(caller(c), common.HexToAddress(req.Asset), limit); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "configured"})
}

func (s *Server) handleBankReserve(c *gin.Context) {
	params, asset, err := parseReserve(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.bank.SetReserveParams(caller(c), asset, params); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "configured"})
}

// ── Gridle ─────────────────────────────────────────────────────────────────

func (s *Server) handleGridleDeposit(c *gin.Context) {
	var req depositReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := req.voucher()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.grid.Deposit(c.Request.Context(), d); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deposited"})
}

func (s *Server) handleGridleUse(c *gin.Context) {
	var req useReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, paidFee, err := req.voucher()
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.grid.Use(c.Request.Context(), u, paidFee); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "used"})
}

func (s *Server) handleGridleWithdraw(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	amount, err := parseBig(req.Amount, "amount")
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.grid.Withdraw(c.Request.Context(), caller(c),
		common.HexToAddress(req.Asset), common.HexToAddress(req.To), amount); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (s *Server) handleGridleReserve(c *gin.Context) {
	params, asset, err := parseReserve(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := s.grid.SetReserveParams(caller(c), asset, params); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "configured"})
}

// ── RetroDrop ──────────────────────────────────────────────────────────────

func (s *Server) handleDropClaim(c *gin.Context) {
	var req useReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, _, err := req.voucher()
	if err != nil {
		badRequest(c, err)
		return
	}
	payout, err := s.drop.ClaimDrop(c.Request.Context(), u, req.LockWeeks)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed", "payout": payout.String(), "lock_weeks": req.LockWeeks})
}

func (s *Server) handleDropPositions(c *gin.Context) {
	account := common.HexToAddress(c.Param("account"))
	c.JSON(http.StatusOK, gin.H{"positions": s.escrow.Positions(account)})
}

func (s *Server) handleDropRelease(c *gin.Context) {
	released, err := s.escrow.Release(c.Request.Context(), caller(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released.String()})
}

// ── Inventory ──────────────────────────────────────────────────────────────

func (s *Server) handleItem(op func(ctx context.Context, it *voucher.Item, paid *big.Int) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req itemReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		it, paid, err := req.voucher()
		if err != nil {
			badRequest(c, err)
			return
		}
		if err := op(c.Request.Context(), it, paid); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "settled", "id": it.ID.String()})
	}
}

func (s *Server) handleItemBatch(c *gin.Context) {
	var reqs []itemReq
	if err := c.ShouldBindJSON(&reqs); err != nil {
		badRequest(c, err)
		return
	}
	its := make([]*voucher.Item, 0, len(reqs))
	paids := make([]*big.Int, 0, len(reqs))
	for i := range reqs {
		it, paid, err := reqs[i].voucher()
		if err != nil {
			badRequest(c, err)
			return
		}
		its = append(its, it)
		paids = append(paids, paid)
	}
	if err := s.inv.ClaimBatch(c.Request.Context(), its, paids); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "settled", "count": len(its)})
}

// ── Helpers ────────────────────────────────────────────────────────────────

func parseReserve(c *gin.Context) (reserve.Params, common.Address, error) {
	var req reserveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return reserve.Params{}, common.Address{}, err
	}
	minCoef, err := parseBig(req.MinCoef, "min_coef")
	if err != nil {
		return reserve.Params{}, common.Address{}, err
	}
	maxCoef, err := parseBig(req.MaxCoef, "max_coef")
	if err != nil {
		return reserve.Params{}, common.Address{}, err
	}
	params := reserve.Params{
		MinCoef:         minCoef,
		MaxCoef:         maxCoef,
		WithdrawAddress: common.HexToAddress(req.WithdrawAddress),
	}
	if req.AbsoluteMin != "" {
		if params.AbsoluteMin, err = parseBig(req.AbsoluteMin, "absolute_min"); err != nil {
			return reserve.Params{}, common.Address{}, err
		}
	}
	return params, common.HexToAddress(req.Asset), nil
}
