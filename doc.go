// Package auth provides multi-tenant credential and session issuance:
// email and password sign in and sign up, stateless bearer tokens, one time
// passcode login over email, and token based password reset.
//
// Service is the entry point. It composes command style handlers, each of
// which validates its payload before touching a store, resolves the tenant,
// and keeps multi-statement writes inside RepositoryManager.RunInTx.
//
// Enumeration safety:
//   - ForgotPassword and RequestOTPLogin return the same Acknowledgement
//     whether or not the email belongs to an account.
//   - SignIn and VerifyOTPLogin fail with ErrInvalidCredentials for unknown
//     users, wrong passwords and bad codes alike. ErrUserNotFound is only
//     returned by the admin lookups GetUser and DeleteUser.
//
// Secrets:
//   - Passwords and login codes are stored as bcrypt hashes computed through
//     a semaphore bounded BcryptHasher.
//   - Reset tokens are stored as SHA-256 digests. The raw token only leaves
//     the process inside the reset link handed to the Notifier.
//
// Activity sinks:
//   - ActivitySink receives audit events for sign in, sign up, resets, OTP
//     and refresh. Sinks run best-effort, errors are logged.
package auth
