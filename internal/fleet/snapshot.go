package fleet

import "math/rand"

// Eligible returns the services matching template that have at least one
// active, verified instance.
func (s Snapshot) Eligible(template string) []Service {
	var out []Service
	for _, svc := range s.Services {
		if svc.Template == template && svc.Live() {
			out = append(out, svc)
		}
	}
	return out
}

// Pick selects one eligible service uniformly at random. ok is false when
// no service qualifies, which is an expected condition, not an error.
func (s Snapshot) Pick(template string, rng *rand.Rand) (Service, bool) {
	eligible := s.Eligible(template)
	if len(eligible) == 0 {
		return Service{}, false
	}
	return eligible[rng.Intn(len(eligible))], true
}
