// Package stub provides an in-memory chain.Backend for tests.
package stub

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ligun0805/token-launchpad/internal/chain"
)

// ErrReverted mimics a node's revert error text.
var ErrReverted = errors.New("execution reverted")

// CallHandler answers one eth_call.
type CallHandler func(msg ethereum.CallMsg) ([]byte, error)

type callKey struct {
	to       common.Address
	selector string
}

// Backend implements chain.Backend for testing.
type Backend struct {
	mu sync.Mutex

	calls     map[callKey]CallHandler
	callCount map[callKey]int
	receipts  map[common.Hash]*types.Receipt
	txs       map[common.Hash]*types.Transaction
	nonces    map[common.Address]uint64

	Chain       *big.Int
	Head        uint64
	BaseFee     *big.Int
	Tip         *big.Int
	GasEstimate uint64
	EstimateErr error

	// ReceiptErr is returned by TransactionReceipt when set.
	ReceiptErr error
	// AutoMine makes every accepted transaction produce a successful receipt.
	AutoMine bool
	// FailSend rejects a transaction at broadcast when it returns non-nil.
	FailSend func(tx *types.Transaction) error
	// MineStatus overrides the receipt status of auto-mined transactions.
	MineStatus func(tx *types.Transaction) uint64

	Sent []*types.Transaction
}

// New creates a stub on chain id 31337 at head 100.
func New() *Backend {
	return &Backend{
		calls:       make(map[callKey]CallHandler),
		callCount:   make(map[callKey]int),
		receipts:    make(map[common.Hash]*types.Receipt),
		txs:         make(map[common.Hash]*types.Transaction),
		nonces:      make(map[common.Address]uint64),
		Chain:       big.NewInt(31337),
		Head:        100,
		BaseFee:     big.NewInt(1_000_000_000),
		Tip:         big.NewInt(1_000_000_000),
		GasEstimate: 50_000,
	}
}

var _ chain.Backend = (*Backend)(nil)

// HandleCall routes eth_call to (to, selector) to h.
func (b *Backend) HandleCall(to common.Address, selector []byte, h CallHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[callKey{to: to, selector: common.Bytes2Hex(selector)}] = h
}

// CallCount reports how many times (to, selector) was called.
func (b *Backend) CallCount(to common.Address, selector []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.callCount[callKey{to: to, selector: common.Bytes2Hex(selector)}]
}

// SetReceipt stores a receipt under its TxHash.
func (b *Backend) SetReceipt(r *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.receipts[r.TxHash] = r
}

// AddTx stores a transaction for TransactionByHash.
func (b *Backend) AddTx(tx *types.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txs[tx.Hash()] = tx
}

// SetNonce sets the pending nonce of an account.
func (b *Backend) SetNonce(addr common.Address, n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nonces[addr] = n
}

// SentTxs returns a snapshot of broadcast transactions.
func (b *Backend) SentTxs() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.Sent...)
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, nil
	}
	key := callKey{to: *msg.To, selector: common.Bytes2Hex(msg.Data[:4])}
	b.mu.Lock()
	h, ok := b.calls[key]
	b.callCount[key]++
	b.mu.Unlock()
	if !ok {
		// no code at address
		return nil, nil
	}
	return h(msg)
}

func (b *Backend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if b.ReceiptErr != nil {
		return nil, b.ReceiptErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	_, mined := b.receipts[hash]
	return tx, !mined, nil
}

func (b *Backend) BlockNumber(_ context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Head, nil
}

func (b *Backend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(b.Head), BaseFee: b.BaseFee}, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	return b.Tip, nil
}

func (b *Backend) ChainID(_ context.Context) (*big.Int, error) {
	return b.Chain, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if b.FailSend != nil {
		if err := b.FailSend(tx); err != nil {
			return err
		}
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if tx.Nonce() < b.nonces[from] {
		return errors.New("nonce too low")
	}
	b.Sent = append(b.Sent, tx)
	b.txs[tx.Hash()] = tx
	if tx.Nonce()+1 > b.nonces[from] {
		b.nonces[from] = tx.Nonce() + 1
	}
	if b.AutoMine {
		b.Head++
		status := types.ReceiptStatusSuccessful
		if b.MineStatus != nil {
			status = b.MineStatus(tx)
		}
		b.receipts[tx.Hash()] = &types.Receipt{
			Status:      status,
			TxHash:      tx.Hash(),
			BlockNumber: new(big.Int).SetUint64(b.Head),
			GasUsed:     tx.Gas() / 2,
		}
	}
	return nil
}

// Return builds a handler returning fixed data.
func Return(data []byte) CallHandler {
	return func(ethereum.CallMsg) ([]byte, error) { return data, nil }
}

// Fail builds a handler returning err.
func Fail(err error) CallHandler {
	return func(ethereum.CallMsg) ([]byte, error) { return nil, err }
}

func mustType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

// Encode ABI-encodes values of the given solidity types, e.g. Encode("uint256", x).
func Encode(typ string, v any) []byte {
	out, err := abi.Arguments{{Type: mustType(typ)}}.Pack(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Uint256 encodes a uint256 return value.
func Uint256(v *big.Int) []byte { return Encode("uint256", v) }

// Address encodes an address return value.
func Address(a common.Address) []byte { return Encode("address", a) }

// Addresses encodes an address[] return value.
func Addresses(as ...common.Address) []byte {
	if as == nil {
		as = []common.Address{}
	}
	return Encode("address[]", as)
}

// Bool encodes a bool return value.
func Bool(v bool) []byte { return Encode("bool", v) }

// IsSelector reports whether calldata starts with the selector.
func IsSelector(data, selector []byte) bool {
	return len(data) >= 4 && strings.EqualFold(common.Bytes2Hex(data[:4]), common.Bytes2Hex(selector))
}
