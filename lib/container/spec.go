package container

import (
	"os"
	"sort"
)

// runtimeSpec is a minimal OCI-runtime-compatible config.json: enough
// fields for an effect builder to run with a bound filesystem, a
// fixed environment, and a mapped root user. It intentionally omits
// fields (seccomp profiles, rlimits, full capability bounding sets)
// that a production sandbox would tune per-profile — this core's job
// is to produce a runnable spec, not to own the runtime's security
// model.
type runtimeSpec struct {
	OCIVersion string        `json:"ociVersion"`
	Root       specRoot      `json:"root"`
	Hostname   string        `json:"hostname,omitempty"`
	Mounts     []specMount   `json:"mounts"`
	Process    specProcess   `json:"process"`
	Linux      specLinux     `json:"linux"`
}

type specRoot struct {
	Path     string `json:"path"`
	Readonly bool   `json:"readonly"`
}

type specMount struct {
	Destination string   `json:"destination"`
	Type        string   `json:"type,omitempty"`
	Source      string   `json:"source,omitempty"`
	Options     []string `json:"options,omitempty"`
}

type specProcess struct {
	Terminal     bool             `json:"terminal"`
	User         specUser         `json:"user"`
	Args         []string         `json:"args"`
	Env          []string         `json:"env"`
	Cwd          string           `json:"cwd"`
	Capabilities specCapabilities `json:"capabilities"`
}

type specCapabilities struct {
	Bounding    []string `json:"bounding"`
	Effective   []string `json:"effective"`
	Permitted   []string `json:"permitted"`
	Inheritable []string `json:"inheritable"`
}

type specUser struct {
	UID int `json:"uid"`
	GID int `json:"gid"`
}

type specLinux struct {
	UIDMappings []specIDMapping `json:"uidMappings"`
	GIDMappings []specIDMapping `json:"gidMappings"`
	Namespaces  []specNamespace `json:"namespaces"`
	// Resources deliberately omitted: the core caps capabilities via
	// the fixed minimal set below rather than a configurable cgroup
	// budget, which is the caller's concern.
}

type specIDMapping struct {
	ContainerID int `json:"containerID"`
	HostID      int `json:"hostID"`
	Size        int `json:"size"`
}

type specNamespace struct {
	Type string `json:"type"`
}

// minimalCapabilities is the fixed capability set granted to the
// builder process — enough to chown/chmod its own build output and
// bind low ports is deliberately not included; effects run as an
// unprivileged mapped root, not real root.
var minimalCapabilities = []string{
	"CAP_CHOWN",
	"CAP_DAC_OVERRIDE",
	"CAP_FOWNER",
	"CAP_FSETID",
	"CAP_SETGID",
	"CAP_SETUID",
}

// buildSpec constructs the OCI-style spec for cfg. The caller's
// mounts (base run-directory binds plus cfg.ExtraBindMounts) are
// already resolved into cfg.ExtraBindMounts by the effect runner;
// buildSpec adds only the virtual filesystems every container needs
// regardless of caller configuration (/proc, /dev, /sys — none of
// which are host bind mounts, so they need no existence check).
func buildSpec(cfg Config) runtimeSpec {
	mounts := []specMount{
		{Destination: "/proc", Type: "proc", Source: "proc"},
		{Destination: "/dev", Type: "tmpfs", Source: "tmpfs", Options: []string{"nosuid", "strictatime", "mode=755", "size=65536k"}},
		{Destination: "/sys", Type: "sysfs", Source: "sysfs", Options: []string{"ro", "nosuid", "noexec", "nodev"}},
	}
	for _, bind := range cfg.ExtraBindMounts {
		options := []string{"bind"}
		if bind.ReadOnly {
			options = append(options, "ro")
		} else {
			options = append(options, "rw")
		}
		mounts = append(mounts, specMount{
			Destination: bind.PathInContainer,
			Type:        "none",
			Source:      bind.PathInHost,
			Options:     options,
		})
	}

	env := make([]string, 0, len(cfg.Environment))
	for _, key := range sortedKeys(cfg.Environment) {
		env = append(env, key+"="+cfg.Environment[key])
	}

	uid := os.Getuid()
	gid := os.Getgid()

	return runtimeSpec{
		OCIVersion: "1.0.2",
		Root: specRoot{
			Path:     "/",
			Readonly: cfg.RootReadOnly,
		},
		Hostname: cfg.Hostname,
		Mounts:   mounts,
		Process: specProcess{
			Terminal: false,
			User:     specUser{UID: 0, GID: 0},
			Args:     append([]string{cfg.Executable}, cfg.Arguments...),
			Env:      env,
			Cwd:      cfg.WorkingDirectory,
			Capabilities: specCapabilities{
				Bounding:    minimalCapabilities,
				Effective:   minimalCapabilities,
				Permitted:   minimalCapabilities,
				Inheritable: minimalCapabilities,
			},
		},
		Linux: specLinux{
			UIDMappings: []specIDMapping{{ContainerID: 0, HostID: uid, Size: 1}},
			GIDMappings: []specIDMapping{{ContainerID: 0, HostID: gid, Size: 1}},
			Namespaces: []specNamespace{
				{Type: "pid"},
				{Type: "mount"},
				{Type: "uts"},
				{Type: "user"},
				// No "network": the network namespace is shared with
				// the host, per the component contract.
			},
		},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
