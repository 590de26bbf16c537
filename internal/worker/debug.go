package worker

import (
	"log"
	"os"
)

// AIAP_DEBUG=1 traces queueing decisions.
var traceQueue = os.Getenv("AIAP_DEBUG") == "1"

func debugLog(format string, args ...any) {
	if !traceQueue {
		return
	}
	log.Printf("[queue] "+format, args...)
}
