// Package profile defines the read-only user profile contract. Profiles are
// owned by an external system; the router only reads them to personalize
// new sessions and never writes back.
package profile

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates no profile exists for the user.
var ErrNotFound = errors.New("profile not found")

// Address is a saved delivery or pickup address.
type Address struct {
	Label  string `json:"label,omitempty"`
	Street string `json:"street"`
	City   string `json:"city"`
}

// String formats the address for prompt injection.
func (a Address) String() string {
	parts := make([]string, 0, 2)
	if a.Street != "" {
		parts = append(parts, a.Street)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	return strings.Join(parts, ", ")
}

// Profile is the structured record returned by the provider. All fields are
// optional; a zero Profile degrades to an anonymous session.
type Profile struct {
	UserID     string    `json:"user_id"`
	FullName   string    `json:"full_name,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	Addresses  []Address `json:"addresses,omitempty"`
}

// PrimaryAddress returns the first saved address, or the empty string.
func (p *Profile) PrimaryAddress() string {
	if p == nil || len(p.Addresses) == 0 {
		return ""
	}
	return p.Addresses[0].String()
}

// Provider looks up profiles by user identifier.
type Provider interface {
	// GetProfile returns the user's profile or ErrNotFound.
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// StaticProvider serves profiles from a fixed map. Used in tests and for
// deployments without a profile database.
type StaticProvider struct {
	profiles map[string]*Profile
}

// NewStaticProvider creates a provider over the given records.
func NewStaticProvider(profiles map[string]*Profile) *StaticProvider {
	if profiles == nil {
		profiles = make(map[string]*Profile)
	}
	return &StaticProvider{profiles: profiles}
}

// GetProfile returns the user's profile or ErrNotFound.
func (p *StaticProvider) GetProfile(_ context.Context, userID string) (*Profile, error) {
	prof, ok := p.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return prof, nil
}

// Verify interface compliance.
var _ Provider = (*StaticProvider)(nil)
