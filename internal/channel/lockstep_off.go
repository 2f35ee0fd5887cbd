//go:build !lockstep

package channel

const lockstep = false
