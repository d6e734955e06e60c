package probe

import "math/rand"

// TaskKind identifies a probe task variant. New kinds get a constant here
// and a handler in the driver; the compiler then keeps dispatch exhaustive.
type TaskKind int

const (
	// TaskChat probes the streaming chat completion endpoint.
	TaskChat TaskKind = iota
)

// String returns the task label used in logs and metrics.
func (k TaskKind) String() string {
	switch k {
	case TaskChat:
		return "chat"
	default:
		return "unknown"
	}
}

// TaskPolicy selects the task kind for the next cycle. Policies are pure:
// same RNG state, same choice.
type TaskPolicy func(rng *rand.Rand) TaskKind

// DefaultTaskPolicy always selects chat, the single supported kind.
func DefaultTaskPolicy(_ *rand.Rand) TaskKind {
	return TaskChat
}
