// Package fleet models the registered service fleet and its directory.
//
// A Snapshot is an immutable value fetched wholesale at the start of each
// probe cycle; nothing mutates it afterward. Service selection is a pure
// function of the snapshot and an RNG, so policies can be swapped without
// touching the directory client.
package fleet

import "time"

// Instance is one running replica of a service.
type Instance struct {
	InstanceID string `json:"instance_id"`
	Active     bool   `json:"active"`
	Verified   bool   `json:"verified"`
}

// Service is a registered backend capability with its instances.
type Service struct {
	ServiceID string     `json:"service_id"`
	Name      string     `json:"name"`
	Template  string     `json:"standard_template"`
	Instances []Instance `json:"instances"`
}

// Live reports whether any instance is both active and verified.
func (s Service) Live() bool {
	for _, inst := range s.Instances {
		if inst.Active && inst.Verified {
			return true
		}
	}
	return false
}

// Snapshot is the fleet state observed at one point in time.
type Snapshot struct {
	Services  []Service
	FetchedAt time.Time
}
