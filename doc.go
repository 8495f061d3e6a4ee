// Package remember assembles remember-me (persistent login) authentication
// into an HTTP security chain.
//
// Pipeline:
//   - HTTPSecurity collects Configurers and builds a SecurityChain in two
//     phases. Every Init runs before any Configure, so shared objects and
//     providers published during Init are visible when filters are built.
//   - Configurers share collaborators through a Registry owned by the build.
//     Keys are typed (MechanismKey, UserLookupKey, DispatcherKey,
//     LogoutCoordinatorKey) and can be set only once.
//
// Remember-me:
//   - RememberMe picks the mechanism. Without a TokenStore it builds the
//     stateless TokenMechanism, whose cookie carries an HMAC over the
//     username, expiry and password hash. With a store it builds the
//     PersistentMechanism, whose cookie carries a series and a token that
//     rotates on every use. Presenting a stale token for a live series
//     removes the series.
//   - The resolved mechanism is published under MechanismKey so FormLogin
//     can issue cookies on interactive login, and its cleanup step is
//     handed to the Logout coordinator when one is applied.
//
// Stores:
//   - store/memory, store/bunstore, store/pgstore and store/redisstore
//     implement TokenStore. All of them also implement TokenRotator so token
//     rotation is a compare-and-swap. Purger deletes series past their
//     validity window on a cron schedule.
package remember
