// Package log centralizes logrus setup for the master runtime.
package log

import "github.com/sirupsen/logrus"

// SetVerbose raises the global level to Debug, otherwise Info is used.
// Warnings and errors are always emitted regardless of verbosity.
func SetVerbose(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.InfoLevel)
}
