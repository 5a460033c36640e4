package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/securevote/backend/internal/config"
)

// votingABI is the fragment of the election contract the gateway calls:
// the castVote mutation and the getVoteCount view the results endpoint
// reads tallies from.
const votingABI = `[{"inputs":[{"internalType":"string","name":"voterId","type":"string"},{"internalType":"string","name":"candidateId","type":"string"}],"name":"castVote","outputs":[],"stateMutability":"nonpayable","type":"function"},{"inputs":[{"internalType":"string","name":"candidateId","type":"string"}],"name":"getVoteCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

const castVoteGasLimit = 300000

// EthereumGateway submits votes to a voting contract over JSON-RPC. It can
// start unconfigured and be (re)configured at runtime through the operator
// endpoint; Submit fails fast with ErrUnavailable until then.
type EthereumGateway struct {
	mu       sync.RWMutex
	client   *ethclient.Client
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	abi      abi.ABI
}

// NewEthereumGateway creates the gateway and applies the initial
// configuration when one is present. An empty RPC URL leaves the gateway
// unconfigured, which is a supported state.
func NewEthereumGateway(ctx context.Context, cfg *config.LedgerConfig) (*EthereumGateway, error) {
	parsed, err := abi.JSON(strings.NewReader(votingABI))
	if err != nil {
		return nil, fmt.Errorf("parsing voting ABI: %w", err)
	}

	g := &EthereumGateway{abi: parsed}
	if cfg.RPCURL == "" {
		log.Printf("Ledger gateway starting unconfigured; votes will be recorded locally")
		return g, nil
	}
	if err := g.Configure(ctx, cfg); err != nil {
		// A broken ledger at startup must not prevent the service from
		// coming up; local fallback keeps voting available.
		log.Printf("Warning: ledger configuration failed, continuing unconfigured: %v", err)
	}
	return g, nil
}

// Configure (re)connects the gateway. Replaces any previous configuration.
func (g *EthereumGateway) Configure(ctx context.Context, cfg *config.LedgerConfig) error {
	if cfg.RPCURL == "" {
		return errors.New("rpc url is required")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		g.client.Close()
	}
	g.client = client
	g.contract = common.HexToAddress(cfg.ContractAddress)
	g.key = key
	g.from = crypto.PubkeyToAddress(key.PublicKey)
	g.chainID = big.NewInt(cfg.ChainID)

	log.Printf("Ledger gateway configured: contract %s via %s", cfg.ContractAddress, cfg.RPCURL)
	return nil
}

// Submit signs and sends a castVote transaction, then waits for it to be
// mined within whatever time ctx leaves. A transaction that was accepted but
// not yet mined still yields a receipt with BlockNumber 0.
func (g *EthereumGateway) Submit(ctx context.Context, voterID, candidateID string) (*Receipt, error) {
	g.mu.RLock()
	client, contract, key, from, chainID := g.client, g.contract, g.key, g.from, g.chainID
	g.mu.RUnlock()

	if client == nil {
		return nil, ErrUnavailable
	}

	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, wrapSubmitError("fetching nonce", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, wrapSubmitError("fetching gas price", err)
	}
	calldata, err := g.abi.Pack("castVote", voterID, candidateID)
	if err != nil {
		return nil, fmt.Errorf("packing castVote call: %w", err)
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), castVoteGasLimit, gasPrice, calldata)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, wrapSubmitError("sending transaction", err)
	}

	receipt := &Receipt{TxHash: signed.Hash().Hex()}

	// Wait for mining only as long as the caller's deadline allows. The
	// transaction is already accepted; a missing block number is fine.
	mined, err := bind.WaitMined(ctx, client, signed)
	if err == nil && mined != nil {
		receipt.BlockNumber = mined.BlockNumber.Uint64()
	}
	return receipt, nil
}

// Results reads the current on-ledger vote count for each of the given
// candidates via the contract's getVoteCount view. Unlike Submit, errors
// here do surface to the caller: a tally that cannot be read has no local
// fallback worth serving.
func (g *EthereumGateway) Results(ctx context.Context, candidateIDs []string) ([]Tally, error) {
	g.mu.RLock()
	client, contract := g.client, g.contract
	g.mu.RUnlock()

	if client == nil {
		return nil, ErrUnavailable
	}

	tallies := make([]Tally, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		calldata, err := g.abi.Pack("getVoteCount", id)
		if err != nil {
			return nil, fmt.Errorf("packing getVoteCount call: %w", err)
		}
		out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: calldata}, nil)
		if err != nil {
			return nil, wrapSubmitError("reading vote count", err)
		}
		vals, err := g.abi.Unpack("getVoteCount", out)
		if err != nil {
			return nil, fmt.Errorf("decoding vote count for %q: %w", id, err)
		}
		if len(vals) != 1 {
			return nil, fmt.Errorf("unexpected vote count shape for %q", id)
		}
		count, ok := vals[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unexpected vote count type for %q", id)
		}
		tallies = append(tallies, Tally{CandidateID: id, Votes: count.Uint64()})
	}
	return tallies, nil
}

// Status reports configuration and reachability.
func (g *EthereumGateway) Status(ctx context.Context) Status {
	g.mu.RLock()
	client, contract := g.client, g.contract
	g.mu.RUnlock()

	status := Status{}
	if client == nil {
		return status
	}
	status.Configured = true
	status.ContractAddress = contract.Hex()
	if _, err := client.BlockNumber(ctx); err == nil {
		status.Connected = true
	}
	return status
}

func wrapSubmitError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
