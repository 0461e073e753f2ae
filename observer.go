package analytics

import "time"

// Outcome classifies a DeliveryReport.
type Outcome int

const (
	// Delivered means the channel accepted the batch.
	Delivered Outcome = iota
	// Failed means the batch was put back at the head of the buffer.
	Failed
	// Dropped means a bounded buffer discarded events.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// DeliveryReport describes one delivery attempt or one drop.
type DeliveryReport struct {
	Outcome Outcome
	// Events is the batch size for delivery attempts.
	Events int
	// Requeued is how many events went back into the buffer.
	Requeued int
	// Dropped is how many events were discarded.
	Dropped  int
	Err      error
	Duration time.Duration
	// Buffered is the advisory buffer length after the operation.
	Buffered int
}

// Observer receives delivery reports so applications can alert on failures
// without Track ever returning them.
type Observer func(DeliveryReport)
