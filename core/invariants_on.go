//go:build !hmc_nochecks

package core

// invariantChecks enables the per-trajectory field checks. Build with
// -tags hmc_nochecks to compile them out.
const invariantChecks = true
