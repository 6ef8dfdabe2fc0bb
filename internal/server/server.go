// Package server exposes holdings, metadata resolution, contract views and
// history over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/holdings"
	"nft-holdings/internal/observability"
	"nft-holdings/internal/storage"
)

// Holdings is the per-account aggregation surface, implemented by holdings.Registry.
type Holdings interface {
	Sync(ctx context.Context, account common.Address) (*holdings.Session, error)
	Refresh(ctx context.Context, account common.Address) (*holdings.Session, error)
	Session(account common.Address) (*holdings.Session, bool)
}

// Contract is the read-only contract surface, implemented by evm.NFT.
type Contract interface {
	Stats(ctx context.Context, user *common.Address) (*domain.ContractStats, error)
	Quote(ctx context.Context, currency domain.Currency, quantity uint64) (*domain.Quote, error)
}

// Options contains the server's collaborators.
type Options struct {
	Holdings  Holdings
	Contract  Contract
	Snapshots storage.SnapshotStore // optional
	Runs      storage.RunStore      // optional
	Logger    *zerolog.Logger
}

// Server serves the HTTP API.
type Server struct {
	holdings  Holdings
	contract  Contract
	snapshots storage.SnapshotStore
	runs      storage.RunStore
	validator *validator.Validate
	logger    zerolog.Logger
}

// New creates a new Server.
func New(opts Options) *Server {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Server{
		holdings:  opts.Holdings,
		contract:  opts.Contract,
		snapshots: opts.Snapshots,
		runs:      opts.Runs,
		validator: validator.New(),
		logger:    logger,
	}
}

// RegisterRoutes builds the echo router.
func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(s.requestLogger())

	e.GET("/api/health", s.healthHandler)
	e.GET("/metrics", echo.WrapHandler(observability.Handler()))

	accounts := e.Group("/api/v1/accounts/:account", s.accountParam)
	accounts.GET("/assets", s.ListAssets)
	accounts.POST("/assets/:index/metadata", s.ResolveMetadata)
	accounts.POST("/refresh", s.RefreshAssets)
	accounts.GET("/history", s.ListHistory)

	contract := e.Group("/api/v1/contract")
	contract.GET("/stats", s.GetStats)
	contract.GET("/quote", s.GetQuote)

	return e
}

func (s *Server) healthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, Res{Data: map[string]string{"status": "ok"}})
}
