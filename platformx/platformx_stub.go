//go:build !linux
// +build !linux

package platformx

import (
	"github.com/m-lab/remycc/logging"
)

func maybeEmitWarning() {
	logging.Logger.Warn("This platform is not officially supported. TCP_INFO and socket pacing are unavailable.")
}
