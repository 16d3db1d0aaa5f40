// Package auth holds the identity model and request-scoped hand-off used by
// every authentication path of dbgate.
//
// A request is authorized by exactly one mechanism: public allowlist, CORS
// preflight, a single-use token, the bearer-token backend, or the
// integrated-auth backend. Whatever identity the chosen path resolves is
// published on the request context (SetIdentity, SetAuthenticatedUser) for
// downstream handlers. Backends implement the Backend interface; within the
// bearer backend, credential validators are composed with AuthChain using
// three-outcome voting (Yes, No, Abstain).
package auth
