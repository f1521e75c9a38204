// Package platformx contains platform specific code
package platformx

// WarnIfNotFullySupported emits a warning on platforms where live sockets
// cannot be observed or paced. Trace replay works everywhere.
func WarnIfNotFullySupported() {
	maybeEmitWarning()
}
