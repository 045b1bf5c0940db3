package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccountIDComponents(t *testing.T) {
	id := NewAccountID(0xdeadbeef, AccountTypeUserWallet, CurrencyNGN)

	assert.Equal(t, uint64(0xdeadbeef), id.UserID())
	assert.Equal(t, AccountTypeUserWallet, id.AccountType())
	assert.Equal(t, CurrencyNGN, id.Currency())
	assert.Equal(t, "USER_WALLET:NGN:00000000deadbeef", id.String())
}

func TestAccountIDBigIntRoundTrip(t *testing.T) {
	userID := uuid.MustParse("0194a0b1-7c3e-7000-8000-00000000abcd")
	id := NewAccountIDFromUUID(userID, AccountTypePaymentHold, CurrencyEUR)

	assert.Equal(t, uint64(0x800000000000abcd), id.UserID())
	assert.Equal(t, id, FromBigInt(id.ToBigInt()))
}

func TestCurrencyFromString(t *testing.T) {
	for _, c := range []Currency{CurrencyEUR, CurrencyGBP, CurrencyIDR, CurrencyUSD, CurrencyNGN} {
		assert.Equal(t, c, CurrencyFromString(c.String()))
	}
	assert.Equal(t, Currency(0), CurrencyFromString("eur"))
}

func TestBalance(t *testing.T) {
	b := Balance{Credits: 10_000, Debits: 2_500, Pending: 1_000}
	assert.Equal(t, int64(6_500), b.Available())
	assert.Equal(t, int64(7_500), b.Total())
	assert.True(t, decimal.RequireFromString("65.00").Equal(Major(b.Available())))
	assert.True(t, decimal.RequireFromString("-0.01").Equal(Major(-1)))
}
