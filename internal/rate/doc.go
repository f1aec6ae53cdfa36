// Package rate implements Redis fixed-window attempt budgets for login and
// refresh operations. The gateway treats the limiter as an optional
// capability: a nil limiter disables throttling entirely.
package rate
