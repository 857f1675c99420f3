// Package csrf implements double-submit-cookie anti-forgery tokens:
// a random token stored in an HttpOnly SameSite=Strict cookie must be
// echoed back in a request header (or form field) on every state-changing
// request. A page that can read the cookie is same-origin by definition;
// a cross-site form is not, so equality of the two copies proves origin.
//
// Tokens carry no claims and are not bound to a session. Verification is
// byte equality in constant time via crypto/subtle; missing and
// mismatched tokens are indistinguishable to the caller.
//
// The manager is stateless beyond the cookie it sets, so all methods are
// safe for concurrent use.
package csrf
