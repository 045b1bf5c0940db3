package ledger

import (
	"errors"
	"fmt"

	tb "github.com/tigerbeetle/tigerbeetle-go"
	tbtypes "github.com/tigerbeetle/tigerbeetle-go/pkg/types"

	"walletgate/internal/config"
)

// ErrAccountNotFound is returned when the ledger has no such account.
var ErrAccountNotFound = errors.New("account not found")

// Client wraps the TigerBeetle client with wallet operations.
type Client struct {
	tb        tb.Client
	clusterID uint64
}

// NewClient creates a new TigerBeetle client.
func NewClient(cfg config.TigerBeetleConfig) (*Client, error) {
	addresses := make([]string, len(cfg.Addresses))
	copy(addresses, cfg.Addresses)

	client, err := tb.NewClient(tbtypes.ToUint128(cfg.ClusterID), addresses)
	if err != nil {
		return nil, fmt.Errorf("create TigerBeetle client: %w", err)
	}

	return &Client{
		tb:        client,
		clusterID: cfg.ClusterID,
	}, nil
}

// Close closes the TigerBeetle client connection.
func (c *Client) Close() {
	c.tb.Close()
}

// CreateWalletAccount creates a user wallet account that cannot go negative.
// An account that already exists with the same parameters is not an error.
func (c *Client) CreateWalletAccount(id AccountID) error {
	accounts := []tbtypes.Account{{
		ID:     tbtypes.BytesToUint128(id),
		Ledger: uint32(id.Currency()),
		Code:   uint16(AccountTypeUserWallet),
		Flags:  tbtypes.AccountFlags{DebitsMustNotExceedCredits: true}.ToUint16(),
	}}

	results, err := c.tb.CreateAccounts(accounts)
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}

	for _, result := range results {
		if result.Result != tbtypes.AccountOK && result.Result != tbtypes.AccountExists {
			return fmt.Errorf("create account failed: %s", result.Result.String())
		}
	}

	return nil
}

// GetAccount retrieves an account from TigerBeetle.
func (c *Client) GetAccount(id AccountID) (*tbtypes.Account, error) {
	accounts, err := c.tb.LookupAccounts([]tbtypes.Uint128{tbtypes.BytesToUint128(id)})
	if err != nil {
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if len(accounts) == 0 {
		return nil, nil // Account not found
	}

	return &accounts[0], nil
}

// GetBalance retrieves the balance for an account.
func (c *Client) GetBalance(id AccountID) (Balance, error) {
	account, err := c.GetAccount(id)
	if err != nil {
		return Balance{}, err
	}

	if account == nil {
		return Balance{}, ErrAccountNotFound
	}

	return Balance{
		Debits:  uint128ToUint64(account.DebitsPosted),
		Credits: uint128ToUint64(account.CreditsPosted),
		Pending: uint128ToUint64(account.DebitsPending),
	}, nil
}

// uint128ToUint64 converts TigerBeetle Uint128 to uint64.
// Note: This may overflow for very large values.
func uint128ToUint64(v tbtypes.Uint128) uint64 {
	bi := v.BigInt()
	return bi.Uint64()
}
