// Package delivery holds the failure taxonomy shared by delivery providers and
// the retry policy wrapped around a single delivery attempt.
//
// A provider returns *Error with Kind Transient for conditions a retry may fix
// (connection errors, timeouts, 5xx responses) and Kind Fatal for permanent
// rejections. Policy.Do retries only Transient errors.
package delivery
