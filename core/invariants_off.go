//go:build hmc_nochecks

package core

const invariantChecks = false
