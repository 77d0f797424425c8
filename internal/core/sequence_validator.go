package core

import (
	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/observability"
)

// SequenceValidator checks that each command source delivers its sequence
// numbers in order, without gaps.
// Not thread-safe: only accessed under the Processor lock.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // source -> next expected sequence
	metrics         *observability.Metrics
}

func NewSequenceValidator(metrics *observability.Metrics) *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         metrics,
	}
}

// ValidateSequence checks a source sequence. A stale sequence is accepted
// only for a command already known to be a duplicate. It does not advance
// the expected sequence; Advance does that once the command is applied.
func (sv *SequenceValidator) ValidateSequence(source string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[source]

	switch {
	case sourceSequence < expected:
		if isDuplicate {
			return nil
		}
		if sv.metrics != nil {
			sv.metrics.CommandOutOfOrder.WithLabelValues(source).Inc()
		}
		return errorsmod.Wrapf(ErrCommandOutOfOrder, "source=%s expected=%d got=%d", source, expected, sourceSequence)

	case sourceSequence > expected:
		if sv.metrics != nil {
			sv.metrics.CommandSequenceGap.WithLabelValues(source).Inc()
		}
		return errorsmod.Wrapf(ErrCommandOutOfOrder, "sequence gap: source=%s expected=%d got=%d", source, expected, sourceSequence)
	}
	return nil
}

// Advance records that sourceSequence was consumed.
func (sv *SequenceValidator) Advance(source string, sourceSequence int64) {
	if sourceSequence >= sv.expectedNextSeq[source] {
		sv.expectedNextSeq[source] = sourceSequence + 1
	}
}

// GetExpectedSequence returns next expected sequence for a source
func (sv *SequenceValidator) GetExpectedSequence(source string) int64 {
	return sv.expectedNextSeq[source]
}

// SetExpectedSequence initializes expected sequence (used during recovery)
func (sv *SequenceValidator) SetExpectedSequence(source string, seq int64) {
	sv.expectedNextSeq[source] = seq
}

// Expected returns a copy of every source's next expected sequence.
func (sv *SequenceValidator) Expected() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}
