// Package identity provides session-backed authentication primitives
// (opaque tokens, Mongo-backed repositories, HTTP helpers) plus the
// lifecycle flows a product needs around them.
//
// Sessions:
//   - Every visitor gets a Session identified by an opaque random
//     token kept in an httpOnly cookie. Logging in binds the session
//     to a user; logging out unbinds it without destroying the
//     session, so anonymous state carries across.
//
// Credential flows:
//   - RegisterUserHandler, AccountVerificationHandler, and the
//     password reset handlers implement the message/handler command
//     shape. Each validates its payload, consults the rate limiter,
//     and fires the matching hooks.
//
// Roles:
//   - RoleRegistry maps role names to permission sets. It is built
//     once and read concurrently; AuthContext carries the resolved
//     roles for the request so middleware can gate routes.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and
//     the command handlers to describe login, signup, verification,
//     and password reset events. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without
//     blocking authentication.
package identity
