// Package app wires configuration into chain, metadata and storage clients
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"nft-holdings/internal/config"
	"nft-holdings/internal/evm"
	"nft-holdings/internal/metadata"
	"nft-holdings/internal/storage"
	chstore "nft-holdings/internal/storage/clickhouse"
	"nft-holdings/internal/storage/memory"
	"nft-holdings/internal/storage/migrations"
	pgstore "nft-holdings/internal/storage/postgres"
)

// Chain holds the node client and the bound contract.
type Chain struct {
	RPC *evm.HTTPClient
	NFT *evm.NFT
}

// NewChain creates the JSON-RPC client and binds the configured contract.
func NewChain(cfg *config.Config, logger zerolog.Logger) *Chain {
	rpc := evm.NewHTTPClient(cfg.RPCEndpoint,
		evm.WithTimeout(cfg.RPCTimeout),
		evm.WithMaxRetries(cfg.RPCMaxRetries),
	)
	reader := evm.NewContractReader(rpc, evm.ParsedFeeNFTABI)
	nft := evm.NewNFT(reader, common.HexToAddress(cfg.ContractAddress), evm.WithLogger(logger))
	return &Chain{RPC: rpc, NFT: nft}
}

// NewHeads dials the websocket endpoint. It returns nil when none is configured.
func NewHeads(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*evm.WSClient, error) {
	if cfg.WSEndpoint == "" {
		return nil, nil
	}
	wsCfg := evm.DefaultWSConfig()
	wsCfg.Logger = &logger
	ws, err := evm.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
	if err != nil {
		return nil, fmt.Errorf("connect websocket: %w", err)
	}
	return ws, nil
}

// NewFetcher creates the metadata fetcher.
func NewFetcher(cfg *config.Config) *metadata.HTTPFetcher {
	return metadata.NewHTTPFetcher(
		metadata.WithIPFSGateway(cfg.IPFSGateway),
		metadata.WithArweaveGateway(cfg.ArweaveGateway),
		metadata.WithFetchTimeout(cfg.MetadataTimeout),
		metadata.WithMaxBytes(cfg.MetadataMaxBytes),
	)
}

// Stores holds the history stores.
type Stores struct {
	Snapshots storage.SnapshotStore
	Runs      storage.RunStore
}

// OpenStores returns in-memory stores when cfg.UseMemory is set. Otherwise it
// connects to PostgreSQL and ClickHouse and applies migrations. The cleanup
// func closes the connections.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, func(), error) {
	if cfg.UseMemory {
		return &Stores{
			Snapshots: memory.NewSnapshotStore(),
			Runs:      memory.NewRunStore(),
		}, func() {}, nil
	}
	if err := cfg.ValidateStores(); err != nil {
		return nil, nil, err
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return &Stores{
		Snapshots: pgstore.NewSnapshotStore(pool),
		Runs:      chstore.NewRunStore(conn),
	}, cleanup, nil
}
