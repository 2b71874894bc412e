package testutil

// Test key material for use in tests only.
const (
	TestSigningKey = "test-signing-key-1234567890123456"
	TestAPIKey     = "sk-test-0123456789abcdef"
	TestTenant     = "acme"
)
