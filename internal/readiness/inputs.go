package readiness

import (
	"walletgate/internal/models"
	"walletgate/internal/source"
)

// VerificationInput maps a verification snapshot to reducer input.
func VerificationInput(s source.Snapshot[models.VerificationRecord]) models.VerificationInput {
	in := models.VerificationInput{
		Loading: s.IsLoading && !s.HasData(),
		Error:   s.IsError,
	}
	if rec := s.Data; rec != nil {
		in.Status = rec.Status
		in.IdentityVerified = rec.IdentityVerified
		in.BiometricVerified = rec.BiometricVerified
		in.OverallVerified = rec.OverallVerified()
	}
	return in
}

// WalletInput maps a wallet snapshot to reducer input.
func WalletInput(s source.Snapshot[models.WalletStatus]) models.WalletInput {
	in := models.WalletInput{
		Loading: s.IsLoading && !s.HasData(),
	}
	if ws := s.Data; ws != nil {
		details := ws.Details
		in.Details = &details
		in.Balance = ws.Balance
	}
	if s.IsError && s.Err != nil {
		in.Error = &models.WalletError{
			Code:       s.Err.StatusCode,
			IsNotFound: s.Err.IsNotFound(),
		}
	}
	return in
}

// PinInput maps a PIN snapshot to reducer input.
func PinInput(s source.Snapshot[models.PinStatus]) models.PinInput {
	in := models.PinInput{
		Loading: s.IsLoading && !s.HasData(),
	}
	if ps := s.Data; ps != nil {
		in.WalletExists = ps.WalletExists
		in.HasPinSet = ps.HasPinSet
	}
	return in
}
