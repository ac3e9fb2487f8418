// Package stripe implements kyc.IdentityProvider with Stripe Identity
// verification sessions.
//
// The provider never retries on its own: kyc.StartVerificationHandler bounds
// each call with a timeout and callers decide whether to try again.
package stripe
