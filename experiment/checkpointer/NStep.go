package checkpointer

// nStep implements checkpointing on every n-th call to Checkpoint
type nStep struct {
	interval int
	calls    int
	Checkpointer
}

// NewNStep returns a Checkpointer that forwards every n-th call to
// Checkpoint to c. If n < 2, every call is forwarded.
func NewNStep(n int, c Checkpointer) Checkpointer {
	if n < 1 {
		n = 1
	}
	return &nStep{interval: n, Checkpointer: c}
}

// Checkpoint implements the Checkpointer interface
func (n *nStep) Checkpoint() error {
	n.calls++
	if n.calls%n.interval == 0 {
		return n.Checkpointer.Checkpoint()
	}
	return nil
}
