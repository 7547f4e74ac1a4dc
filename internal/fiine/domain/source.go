package domain

import (
	"context"
	"time"
)

// RemoteAccount is an expense code or purchase order as reported by fiine.
type RemoteAccount struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	AccountType    string     `json:"account_type"`
	Organization   string     `json:"organization"`
	Active         bool       `json:"active"`
	ValidFrom      *time.Time `json:"valid_from,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Root           string     `json:"root,omitempty"`
}

// RemoteAuthorization is one account a user may charge, with its validity.
type RemoteAuthorization struct {
	Account RemoteAccount `json:"account"`
	IsValid bool          `json:"is_valid"`
}

// UserAccountsResponse is the payload of GET /users/{username}/accounts.
type UserAccountsResponse struct {
	Username string                `json:"username"`
	Accounts []RemoteAuthorization `json:"accounts"`
}

//go:generate mockgen -destination=../mock/mock_source.go -package=mock . AccountSource

// AccountSource lists the authorizations fiine holds for a user.
type AccountSource interface {
	UserAccounts(ctx context.Context, username string) ([]RemoteAuthorization, error)
}

// SyncResult counts what an account synchronization changed.
type SyncResult struct {
	Users           int
	AccountsCreated int
	AccountsUpdated int
	Authorizations  int
	Invalidated     int64
	Errors          []string
}

// Merge folds other into r.
func (r *SyncResult) Merge(other *SyncResult) {
	if other == nil {
		return
	}
	r.Users += other.Users
	r.AccountsCreated += other.AccountsCreated
	r.AccountsUpdated += other.AccountsUpdated
	r.Authorizations += other.Authorizations
	r.Invalidated += other.Invalidated
	r.Errors = append(r.Errors, other.Errors...)
}
