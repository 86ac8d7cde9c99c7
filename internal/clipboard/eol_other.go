//go:build !windows

package clipboard

const lineEnding = "\n"
