package testutil

import (
	"context"

	"github.com/dgellow/grant-intake/internal/identity"
	"github.com/dgellow/grant-intake/internal/profile"
	"github.com/stretchr/testify/mock"
)

// MockProvider is an identity.Provider driven by testify expectations.
// Subscriptions go through a real hub so tests can push events with Emit.
type MockProvider struct {
	mock.Mock
	Hub identity.Hub
}

func (m *MockProvider) GetSession(ctx context.Context) (*identity.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

func (m *MockProvider) Subscribe(h identity.EventHandler) func() {
	return m.Hub.Subscribe(h)
}

// SignOut records the call and, like a real provider, always drops the
// local session by emitting signed_out.
func (m *MockProvider) SignOut(ctx context.Context, scope identity.Scope) error {
	args := m.Called(ctx, scope)
	m.Hub.Emit(identity.Event{Kind: identity.SignedOut})
	return args.Error(0)
}

func (m *MockProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Session), args.Error(1)
}

// Emit pushes ev to every subscriber.
func (m *MockProvider) Emit(ev identity.Event) {
	m.Hub.Emit(ev)
}

// MockFetcher is a profile.Fetcher driven by testify expectations.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) FetchProfile(ctx context.Context, subject string) (*profile.Profile, error) {
	args := m.Called(ctx, subject)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*profile.Profile), args.Error(1)
}
