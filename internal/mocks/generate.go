// Package mocks provides mock implementations for testing the gateway services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	backend := mocks.NewMockBackendAuth(ctrl)
//	backend.EXPECT().Refresh(gomock.Any(), "rt-1").Return(ports.BackendReply{Status: 200, Body: body}, nil)
package mocks

// Generate mock for BackendAuth interface from internal/ports package.
// This creates MockBackendAuth with methods: Login, Register, Refresh, Logout
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=backend_auth_mock.go github.com/tradeboard/gateway/internal/ports BackendAuth

// Generate mock for RefreshCache interface from internal/ports package.
// This creates MockRefreshCache with methods: Get, Put
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=refresh_cache_mock.go github.com/tradeboard/gateway/internal/ports RefreshCache
