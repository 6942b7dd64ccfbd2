// Package rpc submits the sudo transactions that prepare a launched
// relay chain for its allychains.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/axia-network/axia-launch/utils"
	"github.com/axia-network/axia-launch/utils/constants"
	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/signature"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"go.uber.org/zap"
)

const (
	DefaultTxTimeout = 5 * time.Minute

	// Lease granted to an allychain by force_lease.
	leaseAmount      = 1000
	leasePeriodCount = 999
)

var (
	ErrTxTimeout  = errors.New("timed out waiting for transaction")
	ErrTxRejected = errors.New("transaction rejected")
	ErrNoAccount  = errors.New("sudo account not found in state")
)

var _ Client = (*client)(nil)

// Client submits transactions to a relay chain node.
// Each call returns once the transaction is in a block,
// or finalized when [finalization] is set.
type Client interface {
	// Leases [period] onwards to allychain [allychainID].
	ExtendLeasePeriod(ctx context.Context, allychainID string, period uint32, finalization bool) error
	// Sets the free balance of [address] to [amount].
	SetBalance(ctx context.Context, address string, amount string, finalization bool) error
	Close() error
}

// DialFunc connects a Client to the relay chain node listening on [wsPort].
type DialFunc func(ctx context.Context, wsPort uint16, typeDefs map[string]interface{}) (Client, error)

// Config of the clients returned by NewDialer.
type Config struct {
	// Bound on the time a transaction takes to be included or finalized.
	// Defaults to [DefaultTxTimeout].
	TxTimeout time.Duration
}

type client struct {
	log       *zap.Logger
	api       *gsrpc.SubstrateAPI
	meta      *types.Metadata
	txTimeout time.Duration
	// Transactions are signed by the same account,
	// one at a time so nonces never collide.
	lock sync.Mutex
}

// NewDialer returns a DialFunc connecting over websocket
// and signing transactions as the development sudo account.
func NewDialer(log *zap.Logger, config Config) DialFunc {
	if config.TxTimeout <= 0 {
		config.TxTimeout = DefaultTxTimeout
	}
	return func(ctx context.Context, wsPort uint16, typeDefs map[string]interface{}) (Client, error) {
		return dial(ctx, log, wsPort, typeDefs, config.TxTimeout)
	}
}

func dial(ctx context.Context, log *zap.Logger, wsPort uint16, typeDefs map[string]interface{}, txTimeout time.Duration) (Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("ws://%s:%d", constants.IPv4Lookback, wsPort)
	log.Info("connecting to relay chain", zap.String("url", url))
	// Types are described by the runtime metadata, custom
	// definitions are only kept for diagnostics.
	if len(typeDefs) > 0 {
		log.Debug("custom type definitions given", zap.Int("types", len(typeDefs)))
	}
	api, err := gsrpc.NewSubstrateAPI(url)
	if err != nil {
		return nil, fmt.Errorf("couldn't connect to %s: %w", url, err)
	}
	meta, err := api.RPC.State.GetMetadataLatest()
	if err != nil {
		closeAPI(api)
		return nil, fmt.Errorf("couldn't fetch metadata: %w", err)
	}
	return &client{
		log:       log,
		api:       api,
		meta:      meta,
		txTimeout: txTimeout,
	}, nil
}

func (c *client) ExtendLeasePeriod(ctx context.Context, allychainID string, period uint32, finalization bool) error {
	id, err := strconv.ParseUint(allychainID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid allychain id %q: %w", allychainID, err)
	}
	call, err := types.NewCall(
		c.meta,
		"Slots.force_lease",
		types.NewU32(uint32(id)),
		sudoAccountID(),
		types.NewU128(*big.NewInt(leaseAmount)),
		types.NewU32(period),
		types.NewU32(leasePeriodCount),
	)
	if err != nil {
		return err
	}
	c.log.Info("extending lease period", zap.String("allychain-id", allychainID), zap.Uint32("period", period))
	return c.submitSudo(ctx, "force_lease", call, finalization)
}

func (c *client) SetBalance(ctx context.Context, address string, amount string, finalization bool) error {
	accountID, err := decodeAccountID(address)
	if err != nil {
		return err
	}
	value, err := parseAmount(amount)
	if err != nil {
		return err
	}
	call, err := types.NewCall(
		c.meta,
		"Balances.set_balance",
		types.MultiAddress{IsID: true, AsID: accountID},
		types.NewUCompact(value),
		types.NewUCompactFromUInt(0),
	)
	if err != nil {
		return err
	}
	c.log.Info("setting balance", zap.String("address", address), zap.String("amount", amount))
	return c.submitSudo(ctx, "set_balance", call, finalization)
}

func (c *client) Close() error {
	closeAPI(c.api)
	return nil
}

// submitSudo wraps [call] in a sudo call, signs and submits it,
// and waits for its inclusion or finalization.
func (c *client) submitSudo(ctx context.Context, name string, call types.Call, finalization bool) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	sudo, err := types.NewCall(c.meta, "Sudo.sudo", call)
	if err != nil {
		return err
	}
	ext := types.NewExtrinsic(sudo)

	genesisHash, err := c.api.RPC.Chain.GetBlockHash(0)
	if err != nil {
		return err
	}
	rv, err := c.api.RPC.State.GetRuntimeVersionLatest()
	if err != nil {
		return err
	}
	key, err := types.CreateStorageKey(c.meta, "System", "Account", signature.TestKeyringPairAlice.PublicKey)
	if err != nil {
		return err
	}
	var accountInfo types.AccountInfo
	ok, err := c.api.RPC.State.GetStorageLatest(key, &accountInfo)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoAccount
	}
	opts := types.SignatureOptions{
		BlockHash:          genesisHash,
		Era:                types.ExtrinsicEra{IsMortalEra: false},
		GenesisHash:        genesisHash,
		Nonce:              types.NewUCompactFromUInt(uint64(accountInfo.Nonce)),
		SpecVersion:        rv.SpecVersion,
		Tip:                types.NewUCompactFromUInt(0),
		TransactionVersion: rv.TransactionVersion,
	}
	if err := ext.Sign(signature.TestKeyringPairAlice, opts); err != nil {
		return err
	}

	sub, err := c.api.RPC.Author.SubmitAndWatchExtrinsic(ext)
	if err != nil {
		return fmt.Errorf("couldn't submit %s: %w", name, err)
	}
	defer sub.Unsubscribe()

	timer := time.NewTimer(c.txTimeout)
	defer timer.Stop()
	for {
		select {
		case st := <-sub.Chan():
			switch {
			case st.IsInBlock:
				c.log.Debug("transaction included", zap.String("call", name), zap.String("block", st.AsInBlock.Hex()))
				if !finalization {
					return nil
				}
			case st.IsFinalized:
				c.log.Debug("transaction finalized", zap.String("call", name), zap.String("block", st.AsFinalized.Hex()))
				return nil
			case st.IsDropped, st.IsInvalid, st.IsUsurped:
				return fmt.Errorf("%w: %s", ErrTxRejected, name)
			}
		case err := <-sub.Err():
			return fmt.Errorf("%s subscription: %w", name, err)
		case <-timer.C:
			return fmt.Errorf("%w: %s after %s", ErrTxTimeout, name, c.txTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func sudoAccountID() types.AccountID {
	var accountID types.AccountID
	copy(accountID[:], signature.TestKeyringPairAlice.PublicKey)
	return accountID
}

func decodeAccountID(address string) (types.AccountID, error) {
	var accountID types.AccountID
	b, _, err := utils.SS58Decode(address)
	if err != nil {
		return accountID, err
	}
	copy(accountID[:], b)
	return accountID, nil
}

func parseAmount(amount string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("invalid balance %q", amount)
	}
	return value, nil
}

func closeAPI(api *gsrpc.SubstrateAPI) {
	if closer, ok := api.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}
