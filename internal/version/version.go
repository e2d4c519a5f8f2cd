// Package version carries the build version shared by server and client.
package version

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is the semantic version of this build. Overridable at link time:
//
//	go build -ldflags "-X github.com/daimoniac/aaalint/internal/version.Version=1.2.3"
var Version = "1.0.0"

// Compatible reports whether a client at clientVersion can talk to a server
// at serverVersion. Only a major version mismatch is a hard incompatibility.
func Compatible(clientVersion, serverVersion string) (bool, error) {
	client, err := semver.NewVersion(clientVersion)
	if err != nil {
		return false, fmt.Errorf("invalid client version %q: %w", clientVersion, err)
	}

	server, err := semver.NewVersion(serverVersion)
	if err != nil {
		return false, fmt.Errorf("invalid server version %q: %w", serverVersion, err)
	}

	return client.Major() == server.Major(), nil
}
