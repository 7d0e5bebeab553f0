// Package security provides the response-hardening helpers used by
// enumeration-sensitive endpoints: a closed catalog of safe messages, the
// error sanitizer that maps any failure onto it, and a bounded random delay
// applied before error responses.
//
// The sanitizer and the delay are used together. The first removes any
// difference in message text between failure causes, the second removes the
// latency signal of which branch produced the failure.
package security
