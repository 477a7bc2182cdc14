// Package passwordless provides email-based, passwordless authentication
// primitives: single-use temp tokens, revocable session credentials, JWT
// issuance, and an HTTP gate for protected routes.
//
// The flow is the following:
//
//  1. A user registers, or requests a login token, with their email address.
//  2. A single-use temp token is created and its value is emailed to them.
//     The token value never appears in the HTTP response.
//  3. The user exchanges the temp token for a signed session credential via
//     Auther.Login. Consumption is atomic: a token can be redeemed once.
//  4. Requests carrying the signed credential are admitted by the gate, which
//     verifies the signature and checks the backing session is still active.
//  5. Auther.Logout revokes the session used to make the call. Other sessions
//     of the same user remain logged in.
//
// A user may hold many active sessions (multi-device login). Revocation is
// effective even though JWTs are stateless: the gate rejects any credential
// whose registry row is inactive, regardless of signature validity.
//
// Persistence goes through bun repositories; any store offering a unique
// constraint and a compare-and-set update can back the engine.
package passwordless
