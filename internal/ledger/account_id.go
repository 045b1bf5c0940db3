package ledger

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// AccountID represents a 128-bit TigerBeetle account ID.
// Structure: [user_id: 64 bits][account_type: 8 bits][currency: 24 bits][reserved: 32 bits]
type AccountID [16]byte

// NewAccountID creates a new AccountID from components.
func NewAccountID(userID uint64, accountType AccountType, currency Currency) AccountID {
	var id AccountID

	binary.BigEndian.PutUint64(id[0:8], userID)
	id[8] = byte(accountType)

	// Bytes 9-11: Currency (24 bits, big-endian)
	id[9] = byte(currency >> 16)
	id[10] = byte(currency >> 8)
	id[11] = byte(currency)

	return id
}

// NewAccountIDFromUUID creates an AccountID using a UUID's lower 64 bits as user ID.
func NewAccountIDFromUUID(userUUID uuid.UUID, accountType AccountType, currency Currency) AccountID {
	userID := binary.BigEndian.Uint64(userUUID[8:16])
	return NewAccountID(userID, accountType, currency)
}

// UserID returns the user ID component.
func (id AccountID) UserID() uint64 {
	return binary.BigEndian.Uint64(id[0:8])
}

// AccountType returns the account type component.
func (id AccountID) AccountType() AccountType {
	return AccountType(id[8])
}

// Currency returns the currency component.
func (id AccountID) Currency() Currency {
	return Currency(uint32(id[9])<<16 | uint32(id[10])<<8 | uint32(id[11]))
}

// ToBigInt returns the AccountID as a big.Int for database storage.
func (id AccountID) ToBigInt() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// FromBigInt creates an AccountID from a big.Int.
func FromBigInt(n *big.Int) AccountID {
	var id AccountID
	bytes := n.Bytes()

	// Pad to 16 bytes (big.Int omits leading zeros)
	if len(bytes) < 16 {
		copy(id[16-len(bytes):], bytes)
	} else {
		copy(id[:], bytes[len(bytes)-16:])
	}

	return id
}

// String returns a human-readable representation of the AccountID.
func (id AccountID) String() string {
	return fmt.Sprintf("%s:%s:%016x",
		id.AccountType().String(),
		id.Currency().String(),
		id.UserID(),
	)
}
