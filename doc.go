// Package auth is the session and credential-verification core of the
// library client: it decodes bearer tokens issued by the backend, derives an
// identity and role from their claims, tracks token lifetime and sequences
// the forgot-password flow.
//
// Token pipeline:
//   - DecodeToken reads the payload segment of a compact token into a
//     ClaimSet. Signatures are not verified; the backend is trusted. Any
//     malformed input yields an error for which IsUnparsable is true.
//   - ClaimsMapper resolves identifier, name, email and role through fallback
//     key lists, since issuers disagree on claim names. Unknown or missing
//     roles resolve to RoleStudent, never to a higher privilege.
//   - ExpiryOracle reads exp on every call. A missing exp counts as expired.
//
// Session:
//   - SessionStore holds at most one Identity and publishes SignalLogin,
//     SignalLogout and SignalCredentialChanged on a SignalBus. Signals carry
//     no identity; receivers re-check the session.
//   - SessionManager ties the pipeline to a CredentialStore. An expired or
//     unparsable credential is treated exactly like no session.
//   - CredentialWatcher and the redisbus package raise
//     SignalCredentialChanged for writes made by other processes.
//
// Password reset:
//   - ResetFlow walks idle -> email -> code -> newPassword. Verification of
//     the code is deferred to the final submit. Failed steps keep their
//     inputs; Cancel tears the flow down from any state and results of calls
//     issued before a cancel are discarded.
package auth
