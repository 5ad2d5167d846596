package docker

import "github.com/docker/docker/api/types/container"

// Sandbox limits applied to every tool container.
const (
	MemoryLimit = 2 * 1024 * 1024 * 1024
	NanoCPUs    = 2_000_000_000
	PidsLimit   = 256
)

// sandboxHostConfig mounts root read-write at mountPoint and drops every
// capability. Slither writes its crytic-export folder next to the sources,
// so the mount cannot be read-only.
func sandboxHostConfig(root, mountPoint string) *container.HostConfig {
	pids := int64(PidsLimit)
	return &container.HostConfig{
		Binds:   []string{root + ":" + mountPoint},
		CapDrop: []string{"ALL"},
		SecurityOpt: []string{
			"no-new-privileges",
		},
		Resources: container.Resources{
			Memory:    MemoryLimit,
			NanoCPUs:  NanoCPUs,
			PidsLimit: &pids,
		},
	}
}
