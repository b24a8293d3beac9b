// Package domain contains core business types and interfaces.
//
// This file defines the Account domain type. Accounts are identified to the
// API by an opaque credential; only its SHA-256 hash is ever stored.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Account represents a registered API client.
type Account struct {
	ID             uuid.UUID
	CredentialHash string // SHA-256 hex of the issued credential
	Plan           PlanTier
	CreatedAt      time.Time
}

// Limit returns the monthly ceiling for the account's plan.
func (a *Account) Limit() (int, error) {
	return LimitFor(a.Plan)
}

// Registration is returned once, at registration time. Credential is the raw
// bearer token and cannot be recovered afterwards.
type Registration struct {
	Account    *Account
	Credential string
	Limit      int
}
