// Package reconciler runs background maintenance. Its single loop
// sweeps task and result rows whose retention window has passed,
// keeping the store bounded without a manual cleanup step.
package reconciler
