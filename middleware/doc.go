// Package middleware adapts the engine to net/http. [Gate] intercepts
// login, logout, and every protected request; [Translator] turns pipeline
// errors into the configured redirects.
//
// Request order inside the Gate is fixed: logout, then login processing,
// then session resolution, then authorization. Downstream handlers only
// run after an Allow decision and can read the caller's identity with
// [webgate.AuthenticationFrom].
package middleware
