// Package rate implements the fixed-window Redis counters used to throttle
// second-factor verification attempts per session.
package rate
