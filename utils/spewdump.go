package utils

import (
	"bytes"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	log "github.com/sirupsen/logrus"
)

var spewConfig = &spew.ConfigState{
	Indent:                  "  ",
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	DisableMethods:          true,
	SortKeys:                true,
}

// QuoteBytes renders buf on one line with non printable bytes escaped.
func QuoteBytes(buf []byte) string {
	var out bytes.Buffer
	for _, b := range buf {
		if b >= 0x20 && b < 0x7f {
			out.WriteByte(b)
		} else {
			fmt.Fprintf(&out, "\\x%.2x", b)
		}
	}
	return out.String()
}

func SDump(a ...interface{}) string {
	return spewConfig.Sdump(a...)
}

// LogDump writes a deep dump of a at debug level, skipping the formatting
// when debug output is off.
func LogDump(tag string, a ...interface{}) {
	if log.IsLevelEnabled(log.DebugLevel) {
		log.Debugf("[%s] %s", tag, spewConfig.Sdump(a...))
	}
}
