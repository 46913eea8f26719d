package oauth

// Drives the three-legged OAuth handshake with an external provider.
//
// # Introduction
//
// To use the library:
//
//   1) Create an Exchanger with New(), passing the client configuration
//      and a provider bundle like olinkedin.Defaults().
//   2) Set up two urls in your http mux: one to start the login process
//      (calling PerformLogin), and one configured as the provider redirect
//      target (calling PerformAuth).
//
// PerformLogin signs a random nonce into a short lived state cookie and
// redirects the browser to the provider authorization endpoint. The same
// nonce travels through the provider inside the signed `state` parameter.
//
// PerformAuth runs at the end of the handshake. It verifies that the
// state parameter matches the nonce in the cookie (the check fails closed:
// any disagreement is treated as a forged callback and no code exchange is
// attempted), exchanges the authorization code server side, and runs the
// configured verifiers to build a Profile from the provider userinfo
// endpoint.
//
// The Exchanger never issues long lived credentials itself: the caller
// takes the returned Profile and mints whatever session or custom token
// its environment expects.
//
// # Failure model
//
// OAuth codes are single use, so no step is ever retried automatically.
// A state disagreement surfaces as ErrStateMismatch; provider failures
// (denied consent, token endpoint errors, userinfo errors) surface as
// errors wrapping ErrProvider, annotated with the step that failed so the
// caller can log it. Raw provider error bodies belong in server logs,
// never in the response to the browser.
