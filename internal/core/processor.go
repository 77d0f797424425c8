package core

import (
	"encoding/json"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PerpClearing/internal/event"
	"PerpClearing/internal/observability"
)

// Processor serializes commands into the engine. Every applied command is
// assigned the next global sequence, hash-chained, and emitted as an
// Envelope.
type Processor struct {
	mu sync.Mutex

	engine            *Engine
	sequence          int64
	hasher            *StateHasher
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator

	logger  zerolog.Logger
	metrics *observability.Metrics

	persistChan chan<- *event.Envelope
	publishChan chan<- *event.Envelope
}

// ProcessorConfig wires a Processor. Channels may be nil.
type ProcessorConfig struct {
	Engine      *Engine
	Idempotency *IdempotencyChecker
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
	PersistChan chan<- *event.Envelope
	PublishChan chan<- *event.Envelope
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		engine:            cfg.Engine,
		sequence:          1,
		hasher:            NewStateHasher(),
		idempotency:       cfg.Idempotency,
		sequenceValidator: NewSequenceValidator(cfg.Metrics),
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		persistChan:       cfg.PersistChan,
		publishChan:       cfg.PublishChan,
	}
}

// Process is the main processing pipeline. A duplicate command returns
// (nil, nil). payload is the command as received; when nil the command is
// re-encoded for the digest.
func (p *Processor) Process(cmd event.Command, payload []byte) (*event.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	op := cmd.Operation()
	key := cmd.IdempotencyKey()

	// Step 1: Header
	if key == "" || key == uuid.Nil.String() {
		return nil, errorsmod.Wrap(ErrInvalidCommand, "missing command id")
	}
	if cmd.SignedBy().IsZero() {
		return nil, errorsmod.Wrap(ErrInvalidCommand, "missing signer")
	}
	if cmd.Timestamp() <= 0 {
		return nil, errorsmod.Wrapf(ErrInvalidCommand, "timestamp %d", cmd.Timestamp())
	}

	// Step 2: Idempotency check (two-tier)
	isDuplicate := p.idempotency != nil && p.idempotency.IsDuplicate(op, key)

	// Step 3: Source ordering
	source, sourceSeq := cmd.Origin()
	if source != "" {
		if err := p.sequenceValidator.ValidateSequence(source, sourceSeq, isDuplicate); err != nil {
			p.logger.Warn().Err(err).Str("operation", string(op)).Str("source", source).Msg("command rejected")
			return nil, err
		}
	}

	if isDuplicate {
		if p.metrics != nil {
			p.metrics.OperationsRejected.WithLabelValues(string(op), "duplicate").Inc()
		}
		p.logger.Debug().Str("operation", string(op)).Str("idempotency_key", key).Msg("duplicate command skipped")
		return nil, nil
	}
	if source != "" {
		p.sequenceValidator.Advance(source, sourceSeq)
	}

	// Step 4: Apply, hash and mark processed
	envelope, err := p.commit(cmd, payload)
	if err != nil {
		return nil, err
	}

	// Step 5: Emit
	// Persistence uses a blocking send so no envelope is lost; publishing
	// drops on a full channel since subscribers can replay from Postgres.
	if p.persistChan != nil {
		p.persistChan <- envelope
	}
	if p.publishChan != nil {
		select {
		case p.publishChan <- envelope:
		default:
			if p.metrics != nil {
				p.metrics.PublishDrops.Inc()
			}
		}
	}
	return envelope, nil
}

// Replay re-applies a command read back from the command log. Idempotency
// and source ordering are not consulted and nothing is emitted. The
// resulting state hash must equal want.
func (p *Processor) Replay(cmd event.Command, payload []byte, want [32]byte) (*event.Envelope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if source, seq := cmd.Origin(); source != "" {
		p.sequenceValidator.Advance(source, seq)
	}
	envelope, err := p.commit(cmd, payload)
	if err != nil {
		return nil, err
	}
	if envelope.StateHash != want {
		return envelope, errorsmod.Wrapf(ErrStateHashMismatch, "sequence %d: got %x, want %x",
			envelope.Sequence, envelope.StateHash, want)
	}
	return envelope, nil
}

// commit applies cmd, chains its hash and marks it processed. Callers hold
// the lock.
func (p *Processor) commit(cmd event.Command, payload []byte) (*event.Envelope, error) {
	op := cmd.Operation()

	entries, err := p.engine.Apply(cmd)
	if err != nil {
		return nil, err
	}

	// Digest and hash chain
	if payload == nil {
		if payload, err = json.Marshal(cmd); err != nil {
			return nil, errorsmod.Wrap(ErrInvalidCommand, err.Error())
		}
	}
	recordBytes, err := json.Marshal(entries)
	if err != nil {
		return nil, errorsmod.Wrap(ErrInvalidCommand, err.Error())
	}
	digest := make([]byte, 0, len(payload)+len(recordBytes))
	digest = append(digest, payload...)
	digest = append(digest, recordBytes...)

	prevHash := p.hasher.GetPrevHash()
	stateHash := p.hasher.ComputeHash(p.sequence, digest)

	envelope := &event.Envelope{
		Sequence:       p.sequence,
		Operation:      op,
		IdempotencyKey: cmd.IdempotencyKey(),
		Timestamp:      cmd.Timestamp(),
		Payload:        payload,
		Entries:        entries,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	p.sequence++

	// Mark as processed (add to LRU)
	if p.idempotency != nil {
		p.idempotency.MarkProcessed(op, envelope.IdempotencyKey)
	}
	if p.metrics != nil {
		p.metrics.Sequence.Set(float64(envelope.Sequence))
	}
	return envelope, nil
}

// Attach sets the output channels, e.g. once replay has finished.
func (p *Processor) Attach(persist, publish chan<- *event.Envelope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.persistChan = persist
	p.publishChan = publish
}

// StateHash returns the hash of the last applied command, or the genesis
// hash if none.
func (p *Processor) StateHash() [32]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasher.GetPrevHash()
}

// View runs fn against the committed state under the processor lock.
func (p *Processor) View(fn func(s *State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.engine.State())
}

// Read is View with the sequence of the last applied command.
func (p *Processor) Read(fn func(sequence int64, s *State)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.sequence-1, p.engine.State())
}

// LastSequence returns the sequence of the last applied command, 0 if none.
func (p *Processor) LastSequence() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequence - 1
}

// Snapshot is a point-in-time copy of everything needed to resume.
type Snapshot struct {
	Sequence  int64            `json:"sequence"`
	StateHash [32]byte         `json:"state_hash"`
	Sources   map[string]int64 `json:"sources"`
	TakenAt   time.Time        `json:"taken_at"`
	State     State            `json:"state"`
}

// Snapshot encodes the current state under the processor lock. The JSON
// encoding is done while locked so later commands cannot race it.
func (p *Processor) Snapshot(now time.Time) (Snapshot, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Sequence:  p.sequence - 1,
		StateHash: p.hasher.GetPrevHash(),
		Sources:   p.sequenceValidator.Expected(),
		TakenAt:   now,
		State:     *p.engine.State(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, data, nil
}

// Restore resumes from a snapshot.
func (p *Processor) Restore(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.engine.Restore(snap.State)
	p.sequence = snap.Sequence + 1
	p.hasher.Reset(snap.StateHash)
	for source, seq := range snap.Sources {
		p.sequenceValidator.SetExpectedSequence(source, seq)
	}
	p.logger.Info().Int64("sequence", snap.Sequence).Msg("state restored from snapshot")
}
