package chain

import (
	"context"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"cpxtbgateway/internal/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Sink receives every decoded transfer addressed to a monitored wallet.
type Sink interface {
	Process(ctx context.Context, obs models.TransferObservation)
}

// Listener maintains a live subscription to the token contract's Transfer
// events and forwards transfers to monitored merchant wallets. Reconnection
// is retried indefinitely; a bounded backfill runs after each reconnect so
// events missed during the outage are still observed (the reconciler's dedup
// makes the resulting duplicate deliveries harmless).
type Listener struct {
	WSEndpoint     string
	TokenContract  common.Address
	TokenDecimals  int
	BackfillBlocks int64
	Sink           Sink

	mu        sync.RWMutex
	monitored map[string]*models.Merchant
}

func NewListener(wsEndpoint, tokenContract string, decimals int, backfillBlocks int64, sink Sink) *Listener {
	return &Listener{
		WSEndpoint:     wsEndpoint,
		TokenContract:  common.HexToAddress(tokenContract),
		TokenDecimals:  decimals,
		BackfillBlocks: backfillBlocks,
		Sink:           sink,
		monitored:      make(map[string]*models.Merchant),
	}
}

// Register adds a merchant wallet to the monitored set. Registration is
// idempotent, keyed by the lower-cased address; merchants created after
// startup are picked up with no resubscription needed because the chain
// subscription is contract-wide. Returns false when the wallet was already
// monitored.
func (l *Listener) Register(m *models.Merchant) bool {
	addr := strings.ToLower(m.WalletAddress)
	if addr == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.monitored[addr]; ok {
		return false
	}
	l.monitored[addr] = m
	return true
}

// StartMonitoring registers every known merchant at startup.
func (l *Listener) StartMonitoring(merchants []*models.Merchant) {
	for _, m := range merchants {
		if l.Register(m) {
			log.Printf("listener: monitoring wallet=%s merchant=%d", strings.ToLower(m.WalletAddress), m.ID)
		}
	}
}

func (l *Listener) isMonitored(addr string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.monitored[addr]
	return ok
}

// chainBackend is the slice of ethclient the listener uses.
type chainBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client, err := ethclient.DialContext(ctx, l.WSEndpoint)
		if err != nil {
			log.Printf("listener: dial failed: %v", err)
			time.Sleep(3 * time.Second)
			continue
		}
		log.Printf("listener: connected %s", l.WSEndpoint)

		l.runSession(ctx, client)
		client.Close()
		if ctx.Err() != nil {
			return
		}
		time.Sleep(2 * time.Second)
	}
}

// runSession holds one connection's subscription until it breaks. The live
// subscription is established before the backfill scan so the two windows
// overlap; a transfer landing during the scan is buffered on the channel
// instead of falling between them.
func (l *Listener) runSession(ctx context.Context, client chainBackend) {
	logs := make(chan types.Log, 64)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.TokenContract},
		Topics:    [][]common.Hash{{transferTopic}},
	}
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		log.Printf("listener: subscribe failed: %v", err)
		return
	}
	defer sub.Unsubscribe()

	l.backfill(ctx, client)

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			log.Printf("listener: subscription lost: %v", err)
			return
		case lg := <-logs:
			l.handleLog(ctx, lg)
		}
	}
}

// backfill scans a bounded recent block range so transfers that landed while
// disconnected are not lost.
func (l *Listener) backfill(ctx context.Context, client chainBackend) {
	if l.BackfillBlocks <= 0 {
		return
	}
	latest, err := client.BlockNumber(ctx)
	if err != nil {
		log.Printf("listener: backfill block number failed: %v", err)
		return
	}
	from := int64(latest) - l.BackfillBlocks + 1
	if from < 0 {
		from = 0
	}
	log.Printf("listener: backfill range=%d..%d", from, latest)

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{l.TokenContract},
		Topics:    [][]common.Hash{{transferTopic}},
	}
	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		log.Printf("listener: backfill failed: %v", err)
		return
	}
	for _, lg := range logs {
		l.handleLog(ctx, lg)
	}
}

func (l *Listener) handleLog(ctx context.Context, lg types.Log) {
	if lg.Removed {
		return
	}
	obs, ok := DecodeTransfer(lg, l.TokenDecimals)
	if !ok {
		return
	}
	if !l.isMonitored(obs.To) {
		return
	}
	l.Sink.Process(ctx, obs)
}

// DecodeTransfer turns an ERC-20 Transfer log into a transfer observation.
// Addresses are lower-cased and the raw smallest-unit value is converted to
// a token-denominated decimal.
func DecodeTransfer(lg types.Log, decimals int) (models.TransferObservation, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
		return models.TransferObservation{}, false
	}
	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())
	value := new(big.Int).SetBytes(lg.Data)

	return models.TransferObservation{
		From:   strings.ToLower(from.Hex()),
		To:     strings.ToLower(to.Hex()),
		Amount: decimal.NewFromBigInt(value, -int32(decimals)),
		TxHash: lg.TxHash.Hex(),
	}, true
}
