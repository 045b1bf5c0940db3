package ledger

import "github.com/shopspring/decimal"

// AccountType represents the type of TigerBeetle account.
type AccountType uint8

const (
	// AccountTypeUserWallet holds a retail user's spendable funds per currency
	AccountTypeUserWallet AccountType = 0x01

	// AccountTypePaymentHold holds funds reserved by in-app payments
	AccountTypePaymentHold AccountType = 0x02
)

// String returns a human-readable name for the account type.
func (t AccountType) String() string {
	switch t {
	case AccountTypeUserWallet:
		return "USER_WALLET"
	case AccountTypePaymentHold:
		return "PAYMENT_HOLD"
	default:
		return "UNKNOWN"
	}
}

// Currency represents ISO 4217 currency codes as ledger IDs.
type Currency uint32

const (
	CurrencyEUR Currency = 978
	CurrencyGBP Currency = 826
	CurrencyIDR Currency = 360
	CurrencyUSD Currency = 840
	CurrencyNGN Currency = 566
)

// String returns the ISO 4217 code for the currency.
func (c Currency) String() string {
	switch c {
	case CurrencyEUR:
		return "EUR"
	case CurrencyGBP:
		return "GBP"
	case CurrencyIDR:
		return "IDR"
	case CurrencyUSD:
		return "USD"
	case CurrencyNGN:
		return "NGN"
	default:
		return "UNKNOWN"
	}
}

// CurrencyFromString converts a currency code string to Currency.
func CurrencyFromString(s string) Currency {
	switch s {
	case "EUR":
		return CurrencyEUR
	case "GBP":
		return CurrencyGBP
	case "IDR":
		return CurrencyIDR
	case "USD":
		return CurrencyUSD
	case "NGN":
		return CurrencyNGN
	default:
		return 0
	}
}

// Balance represents an account balance in minor units.
type Balance struct {
	Debits  uint64 // Total debits posted
	Credits uint64 // Total credits posted
	Pending uint64 // Pending debits (holds)
}

// Available returns the available balance (credits - debits - pending).
func (b Balance) Available() int64 {
	return int64(b.Credits) - int64(b.Debits) - int64(b.Pending)
}

// Total returns the total balance (credits - debits).
func (b Balance) Total() int64 {
	return int64(b.Credits) - int64(b.Debits)
}

// Major converts minor units to a decimal amount with two fractional digits.
func Major(minorUnits int64) decimal.Decimal {
	return decimal.New(minorUnits, -2)
}
