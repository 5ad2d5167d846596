// Package docker runs the analysis tools inside a container.
//
// Runner implements analyzer.CommandRunner on top of the Docker Engine API.
// The audited project is bind-mounted at /src and host paths are translated
// in both directions, so the analyzer adapters behave the same as on the host.
package docker
