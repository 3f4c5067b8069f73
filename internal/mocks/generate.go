// Package mocks provides generated mock implementations for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for
// the ports the admin orchestration depends on. The mocks are generated using
// go:generate directives and provide a fluent API for setting up test
// expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	dir := mocks.NewMockAdminDirectory(ctrl)
//	dir.EXPECT().SetDisabled(gomock.Any(), "uid-1", true).Return(nil)
package mocks

// Generate mock for the AdminDirectory interface from internal/ports.
// This creates MockAdminDirectory with methods:
// GetUser, ListUsers, DeleteUser, SetDisabled
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=admin_directory_mock.go github.com/codelane/authdeck/internal/ports AdminDirectory
