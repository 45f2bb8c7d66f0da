// Package provider discovers the external coding agent CLIs that tasks can
// be dispatched to.
package provider

// Installation represents a discovered provider installation
type Installation struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Source  string `json:"source"` // "path" or "discovered"
}

// Provider is an external coding agent reachable through a CLI binary.
type Provider interface {
	// ID matches the agent names accepted by send_to_agent.
	ID() string

	// Name returns the human-readable name of the provider
	Name() string

	// DiscoverInstallations finds installed binaries, PATH first.
	DiscoverInstallations() ([]Installation, error)
}
