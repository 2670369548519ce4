// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/fleetpm/internal/auth"
	"github.com/xkilldash9x/fleetpm/internal/browser"
	"github.com/xkilldash9x/fleetpm/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) App() config.AppConfig {
	args := m.Called()
	return args.Get(0).(config.AppConfig)
}

func (m *MockConfig) Credentials() config.CredentialsConfig {
	args := m.Called()
	return args.Get(0).(config.CredentialsConfig)
}

func (m *MockConfig) Timeouts() config.TimeoutsConfig {
	args := m.Called()
	return args.Get(0).(config.TimeoutsConfig)
}

func (m *MockConfig) Workflow() config.WorkflowConfig {
	args := m.Called()
	return args.Get(0).(config.WorkflowConfig)
}

func (m *MockConfig) Navigation() config.NavigationConfig {
	args := m.Called()
	return args.Get(0).(config.NavigationConfig)
}

func (m *MockConfig) Input() config.InputConfig {
	args := m.Called()
	return args.Get(0).(config.InputConfig)
}

func (m *MockConfig) Results() config.ResultsConfig {
	args := m.Called()
	return args.Get(0).(config.ResultsConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool) {
	m.Called(b)
}

func (m *MockConfig) SetInputPath(p string) {
	m.Called(p)
}

// -- Authenticator Mock --

// MockAuthenticator mocks auth.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

var _ auth.Authenticator = (*MockAuthenticator)(nil)

func (m *MockAuthenticator) EnsureAuthenticated(ctx context.Context, creds auth.Credentials) auth.Result {
	args := m.Called(ctx, creds)
	return args.Get(0).(auth.Result)
}

// -- Driver Mock --

// MockDriver mocks browser.Driver. Prefer browsertest.Page for anything
// that walks screens; this is for asserting exact calls.
type MockDriver struct {
	mock.Mock
}

var _ browser.Driver = (*MockDriver)(nil)

func (m *MockDriver) Find(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	args := m.Called(ctx, q)
	els, _ := args.Get(0).([]browser.Element)
	return els, args.Error(1)
}

func (m *MockDriver) Click(ctx context.Context, el browser.Element) error {
	args := m.Called(ctx, el)
	return args.Error(0)
}

func (m *MockDriver) Type(ctx context.Context, el browser.Element, text string) error {
	args := m.Called(ctx, el, text)
	return args.Error(0)
}

func (m *MockDriver) Signature(ctx context.Context, probes map[string]browser.Query) (browser.Signature, error) {
	args := m.Called(ctx, probes)
	sig, _ := args.Get(0).(browser.Signature)
	return sig, args.Error(1)
}

func (m *MockDriver) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockDriver) Alive(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Recovery Observer Mock --

// MockRecoveryObserver records baseline recovery attempts.
type MockRecoveryObserver struct {
	mock.Mock
}

func (m *MockRecoveryObserver) ObserveRecovery(method string, ok bool) {
	m.Called(method, ok)
}
