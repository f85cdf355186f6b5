package registry

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/auctionhouse/internal/domain"
)

// registryABI is the ERC-721-style surface of the on-chain asset registry
// contract.
const registryABI = `[
	{"name":"mint","type":"function","inputs":[{"name":"to","type":"address"}],"outputs":[{"name":"tokenId","type":"uint256"}]},
	{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"transferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"name":"safeTransferFrom","type":"function","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"name":"burn","type":"function","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"name":"Transfer","type":"event","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
]`

// mintWait bounds how long Mint waits for its transaction receipt.
const mintWait = 2 * time.Minute

// EthConfig configures the on-chain registry backend.
type EthConfig struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64

	// PrivateKeyHex signs registry transactions. The key's address must be
	// authorized by the contract for custody transfers.
	PrivateKeyHex string
}

// Eth implements domain.AssetRegistry against an ERC-721-style contract via
// go-ethereum. Transfer and SafeTransfer map onto transferFrom and
// safeTransferFrom; the contract enforces holder checks and runs receiver
// hooks on chain.
type Eth struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	abi      abi.ABI
	addr     common.Address
	opts     *bind.TransactOpts
	key      *ecdsa.PrivateKey
}

// NewEth dials the RPC endpoint and binds the registry contract.
func NewEth(ctx context.Context, cfg EthConfig) (*Eth, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("registry: invalid contract address %q", cfg.ContractAddress)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("registry: dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("registry: parse abi: %w", err)
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("registry: invalid private key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("registry: transactor: %w", err)
	}

	addr := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(addr, parsed, client, client, client)

	return &Eth{
		client:   client,
		contract: contract,
		abi:      parsed,
		addr:     addr,
		opts:     opts,
		key:      key,
	}, nil
}

// SignerAddress returns the address registry transactions are sent from.
func (r *Eth) SignerAddress() common.Address {
	return ethcrypto.PubkeyToAddress(r.key.PublicKey)
}

// Close releases the underlying RPC connection.
func (r *Eth) Close() {
	r.client.Close()
}

// Mint issues a new asset to owner and returns the token id parsed from the
// Transfer event in the mined receipt.
func (r *Eth) Mint(ctx context.Context, owner common.Address) (domain.AssetID, error) {
	tx, err := r.transact(ctx, "mint", owner)
	if err != nil {
		return 0, fmt.Errorf("registry: mint: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, mintWait)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, r.client, tx)
	if err != nil {
		return 0, fmt.Errorf("registry: mint wait: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, fmt.Errorf("registry: mint reverted (tx %s)", tx.Hash().Hex())
	}

	transferTopic := r.abi.Events["Transfer"].ID
	for _, log := range receipt.Logs {
		if log.Address == r.addr && len(log.Topics) == 4 && log.Topics[0] == transferTopic {
			return domain.AssetID(log.Topics[3].Big().Uint64()), nil
		}
	}
	return 0, fmt.Errorf("registry: mint: no Transfer event in receipt (tx %s)", tx.Hash().Hex())
}

// OwnerOf returns the current holder of the asset.
func (r *Eth) OwnerOf(ctx context.Context, asset domain.AssetID) (common.Address, error) {
	var out []any
	err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenID(asset))
	if err != nil {
		// ownerOf reverts for unknown tokens.
		return common.Address{}, fmt.Errorf("registry: ownerOf %d: %w", asset, domain.ErrUnknownAsset)
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("registry: ownerOf %d: unexpected return type", asset)
	}
	return owner, nil
}

// Transfer moves the asset without recipient validation.
func (r *Eth) Transfer(ctx context.Context, asset domain.AssetID, from, to common.Address) error {
	if err := r.transactAndWait(ctx, "transferFrom", from, to, tokenID(asset)); err != nil {
		return fmt.Errorf("registry: transfer %d: %w", asset, err)
	}
	return nil
}

// SafeTransfer moves the asset, running the recipient's on-chain receiver
// hook. A rejecting recipient reverts the transaction.
func (r *Eth) SafeTransfer(ctx context.Context, asset domain.AssetID, from, to common.Address) error {
	if err := r.transactAndWait(ctx, "safeTransferFrom", from, to, tokenID(asset)); err != nil {
		return fmt.Errorf("registry: safe transfer %d: %w", asset, domain.ErrTransferFailed)
	}
	return nil
}

// Burn destroys the asset.
func (r *Eth) Burn(ctx context.Context, asset domain.AssetID, caller common.Address) error {
	owner, err := r.OwnerOf(ctx, asset)
	if err != nil {
		return err
	}
	if owner != caller {
		return fmt.Errorf("registry: burn %d: %w", asset, domain.ErrNotOwner)
	}
	if err := r.transactAndWait(ctx, "burn", tokenID(asset)); err != nil {
		return fmt.Errorf("registry: burn %d: %w", asset, err)
	}
	return nil
}

func (r *Eth) transact(ctx context.Context, method string, args ...any) (*types.Transaction, error) {
	opts := *r.opts
	opts.Context = ctx
	return r.contract.Transact(&opts, method, args...)
}

func (r *Eth) transactAndWait(ctx context.Context, method string, args ...any) error {
	tx, err := r.transact(ctx, method, args...)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, mintWait)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, r.client, tx)
	if err != nil {
		return fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction reverted (tx %s)", tx.Hash().Hex())
	}
	return nil
}

func tokenID(asset domain.AssetID) *big.Int {
	return new(big.Int).SetUint64(uint64(asset))
}

// Compile-time interface check.
var _ domain.AssetRegistry = (*Eth)(nil)
