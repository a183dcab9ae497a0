// Package integration provides end-to-end tests of the slides mirror against
// the real Google Slides API.
//
// Integration tests are skipped unless the INTEGRATION_TEST environment
// variable is set:
//
//	INTEGRATION_TEST=1 go test -v ./internal/integration/...
//
// # Required Environment Variables
//
//   - INTEGRATION_TEST: Set to "1" to enable integration tests
//   - GOOGLE_CLIENT_ID: OAuth2 client ID
//   - GOOGLE_CLIENT_SECRET: OAuth2 client secret
//   - GOOGLE_REFRESH_TOKEN: Refresh token with presentations.readonly scope
//   - TEST_PRESENTATION_ID: Presentation the tests cache and serve (read only)
//
// The presentation is never modified. Cache directories live under
// t.TempDir() and are removed with the test.
package integration
