// Package constants holds the program name and build version shared by the
// server, its metrics and the command line tools.
package constants

import "runtime"

// Name prefixes metrics, cache keys and version banners.
const Name = "designflood"

// Version is the release plus the platform it was built for.
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH
