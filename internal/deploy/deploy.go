// Package deploy provisions a pool for a chain: it resolves the owner and
// the price feed the way a contract deployment would and builds the ledger.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/fundme/fundme/internal/config"
	"github.com/fundme/fundme/internal/custody"
	"github.com/fundme/fundme/internal/logging"
	"github.com/fundme/fundme/internal/oracle"
	"github.com/fundme/fundme/internal/pool"
	"github.com/fundme/fundme/internal/units"
)

// DevelopmentDeployer is the first account of the default development
// mnemonic. It owns the pool on development chains when nothing else is set.
var DevelopmentDeployer = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

var ErrNoOwner = errors.New("owner address or deployer key is required")

// DialFunc binds an on-chain price feed.
type DialFunc func(ctx context.Context, rpcURL string, address common.Address) (oracle.PriceFeed, error)

// Params configures Provision.
type Params struct {
	ChainID            int64
	Networks           config.Networks
	RPCURL             string
	PriceFeedAddress   string
	OwnerAddress       string
	DeployerPrivateKey string
	MinimumUSD         string
	MockDecimals       uint8
	MockAnswer         string
	PoolName           string
	Vault              custody.Vault
	Logger             *slog.Logger
	Dial               DialFunc
}

// ParamsFromConfig maps runtime configuration onto Params.
func ParamsFromConfig(cfg config.Config, networks config.Networks, vault custody.Vault, logger *slog.Logger) Params {
	return Params{
		ChainID:            cfg.ChainID,
		Networks:           networks,
		RPCURL:             cfg.RPCURL,
		PriceFeedAddress:   cfg.PriceFeedAddress,
		OwnerAddress:       cfg.OwnerAddress,
		DeployerPrivateKey: cfg.DeployerPrivateKey,
		MinimumUSD:         cfg.MinimumUSD,
		MockDecimals:       cfg.MockPriceDecimals,
		MockAnswer:         cfg.MockPriceAnswer,
		PoolName:           cfg.PoolName,
		Vault:              vault,
		Logger:             logger,
	}
}

// Deployment is a provisioned pool.
type Deployment struct {
	Network config.Network
	Owner   common.Address
	Feed    oracle.PriceFeed
	// Mock is set when the feed is a development stand-in.
	Mock   *oracle.StaticFeed
	Ledger *pool.Ledger
}

// Provision resolves the network, owner and price feed, then constructs the
// ledger on the given vault.
func Provision(ctx context.Context, p Params) (*Deployment, error) {
	logger := logging.Component(p.Logger, "deploy")
	if p.Vault == nil {
		return nil, fmt.Errorf("custody vault is required")
	}
	network, err := p.Networks.Lookup(p.ChainID)
	if err != nil {
		return nil, err
	}
	owner, err := resolveOwner(p, network)
	if err != nil {
		return nil, err
	}
	minimum, err := units.ParseUSD(p.MinimumUSD)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum contribution: %w", err)
	}

	d := &Deployment{Network: network, Owner: owner}
	switch {
	case p.PriceFeedAddress != "" || !network.Development:
		feedAddr := p.PriceFeedAddress
		if feedAddr == "" {
			feedAddr = network.EthUsdPriceFeed
		}
		if !common.IsHexAddress(feedAddr) {
			return nil, fmt.Errorf("no usable price feed for %s (chain %d)", network.Name, network.ChainID)
		}
		rpcURL := p.RPCURL
		if rpcURL == "" {
			rpcURL = network.RPCURL
		}
		if rpcURL == "" {
			return nil, fmt.Errorf("RPC_URL is required for %s", network.Name)
		}
		dial := p.Dial
		if dial == nil {
			dial = dialAggregator
		}
		feed, err := dial(ctx, rpcURL, common.HexToAddress(feedAddr))
		if err != nil {
			return nil, fmt.Errorf("bind price feed: %w", err)
		}
		d.Feed = feed
	default:
		answer, ok := new(big.Int).SetString(strings.TrimSpace(p.MockAnswer), 10)
		if !ok {
			return nil, fmt.Errorf("invalid mock price answer %q", p.MockAnswer)
		}
		// address the mock would get as the deployer's first contract
		mock := oracle.NewStaticFeed(crypto.CreateAddress(owner, 0), p.MockDecimals, answer)
		d.Feed = mock
		d.Mock = mock
		logger.Info("local network detected, using mock price feed",
			slog.String("feed", mock.Address().Hex()),
			slog.String("answer", answer.String()),
			slog.Int("decimals", int(p.MockDecimals)),
		)
	}

	ledger, err := pool.New(ctx, pool.Options{
		Name:    p.PoolName,
		Owner:   owner,
		Feed:    d.Feed,
		Vault:   p.Vault,
		Minimum: minimum,
		Logger:  p.Logger,
	})
	if err != nil {
		return nil, err
	}
	d.Ledger = ledger

	logger.Info("pool provisioned",
		slog.String("network", network.Name),
		slog.Int64("chain_id", network.ChainID),
		slog.String("owner", owner.Hex()),
		slog.String("price_feed", d.Feed.Address().Hex()),
		slog.String("minimum_usd", units.FormatUSD(minimum)),
	)
	return d, nil
}

func resolveOwner(p Params, network config.Network) (common.Address, error) {
	if p.OwnerAddress != "" {
		if !common.IsHexAddress(p.OwnerAddress) {
			return common.Address{}, fmt.Errorf("invalid OWNER_ADDRESS %q", p.OwnerAddress)
		}
		return common.HexToAddress(p.OwnerAddress), nil
	}
	if p.DeployerPrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(p.DeployerPrivateKey), "0x"))
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid deployer key: %w", err)
		}
		return crypto.PubkeyToAddress(key.PublicKey), nil
	}
	if network.Development {
		return DevelopmentDeployer, nil
	}
	return common.Address{}, ErrNoOwner
}

func dialAggregator(ctx context.Context, rpcURL string, address common.Address) (oracle.PriceFeed, error) {
	return oracle.DialAggregator(ctx, rpcURL, address)
}
