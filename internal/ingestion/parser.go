package ingestion

import (
	"bytes"
	"encoding/json"
	"strings"

	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
)

// CommandSubjectPrefix is the subject namespace commands arrive on. The last
// token of a command subject is the operation name.
const CommandSubjectPrefix = "clearinghouse.cmd"

// CommandSubject returns the subject a command for op is published to.
func CommandSubject(op event.Operation) string {
	return CommandSubjectPrefix + "." + string(op)
}

// OperationFromSubject resolves the operation of a command subject.
func OperationFromSubject(subject string) (event.Operation, error) {
	if !strings.HasPrefix(subject, CommandSubjectPrefix+".") {
		return "", errorsmod.Wrapf(core.ErrUnknownOperation, "subject %q", subject)
	}
	op := event.Operation(subject[strings.LastIndexByte(subject, '.')+1:])
	if _, ok := event.New(op); !ok {
		return "", errorsmod.Wrapf(core.ErrUnknownOperation, "subject %q", subject)
	}
	return op, nil
}

// ParseCommand decodes a JSON payload into the command for op. Unknown
// fields are rejected so a misspelled amount never decodes as zero.
func ParseCommand(op event.Operation, data []byte) (event.Command, error) {
	cmd, ok := event.New(op)
	if !ok {
		return nil, errorsmod.Wrapf(core.ErrUnknownOperation, "%q", op)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cmd); err != nil {
		return nil, errorsmod.Wrapf(core.ErrInvalidCommand, "parse %s: %v", op, err)
	}
	return cmd, nil
}

// ParseRawCommand converts a RawCommand into a typed command, taking the
// operation from the subject.
func ParseRawCommand(raw RawCommand) (event.Command, error) {
	op, err := OperationFromSubject(raw.Subject)
	if err != nil {
		return nil, err
	}
	return ParseCommand(op, raw.Data)
}
