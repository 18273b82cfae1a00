/*
flag Package set up cli flags shared across services

Flags listed in this package are shared across boundaries and
service-agnostic. For service dependent flags please define in their
respective package. Parse must be called from main before the flags are
trusted; importers that only read defaults (e.g. tests) can skip it.
*/

package flag

import (
	"flag"
)

const (
	APIServer = "api_server"
	Sweeper   = "notification_sweeper"
)

var (
	IsDevelopment = flag.Bool("dev", true, "set to true if the current run is for development. default value is true")
	ServiceName   = flag.String("service", APIServer, "'api_server' or 'notification_sweeper'")
)

// Parse parses the process arguments into the shared flags.
func Parse() {
	flag.Parse()
}
