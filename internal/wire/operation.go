package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedOperation reports a known operation whose parameters do not
// match its shape.
var ErrMalformedOperation = errors.New("wire: malformed operation")

// OpName identifies a remote operation on the wire.
type OpName string

const (
	OpGetCurrentState           OpName = "GetCurrentState"
	OpUpdateLatestRecord        OpName = "UpdateLatestRecord"
	OpGetNextPeriodIdentifier   OpName = "GetNextPeriodIdentifier"
	OpUpdateAllPendingEntries   OpName = "UpdateAllPendingEntries"
	OpGetPendingEntries         OpName = "GetPendingEntries"
	OpGetSettledEntries         OpName = "GetSettledEntries"
	OpGenerateBatchEntries      OpName = "GenerateBatchEntries"
	OpDeprecateLastBatch        OpName = "DeprecateLastBatch"
	OpCrawlAllHistoricalRecords OpName = "CrawlAllHistoricalRecords"
	OpUpdateRecordsByPeriodList OpName = "UpdateRecordsByPeriodList"
	OpUpdateRecordsForYear      OpName = "UpdateRecordsForYear"
	OpShutdown                  OpName = "Shutdown"
	OpRestart                   OpName = "Restart"
)

// Operation is the closed set of remote calls. Implementations live in this
// package only.
type Operation interface {
	Name() OpName
	operation()
}

type (
	GetCurrentState           struct{}
	UpdateLatestRecord        struct{}
	GetNextPeriodIdentifier   struct{}
	UpdateAllPendingEntries   struct{}
	GetPendingEntries         struct{}
	GetSettledEntries         struct{}
	GenerateBatchEntries      struct{}
	DeprecateLastBatch        struct{}
	CrawlAllHistoricalRecords struct{}
	Shutdown                  struct{}
	Restart                   struct{}
)

// UpdateRecordsByPeriodList refreshes the records for the listed periods.
type UpdateRecordsByPeriodList struct {
	Periods []string
}

// UpdateRecordsForYear refreshes every record published in Year.
type UpdateRecordsForYear struct {
	Year int
}

// UnknownOperation carries an operation name this build does not recognize.
// It decodes successfully so the daemon can answer "not implemented" instead
// of dropping the connection.
type UnknownOperation struct {
	OpName OpName
	Params json.RawMessage
}

func (GetCurrentState) Name() OpName           { return OpGetCurrentState }
func (UpdateLatestRecord) Name() OpName        { return OpUpdateLatestRecord }
func (GetNextPeriodIdentifier) Name() OpName   { return OpGetNextPeriodIdentifier }
func (UpdateAllPendingEntries) Name() OpName   { return OpUpdateAllPendingEntries }
func (GetPendingEntries) Name() OpName         { return OpGetPendingEntries }
func (GetSettledEntries) Name() OpName         { return OpGetSettledEntries }
func (GenerateBatchEntries) Name() OpName      { return OpGenerateBatchEntries }
func (DeprecateLastBatch) Name() OpName        { return OpDeprecateLastBatch }
func (CrawlAllHistoricalRecords) Name() OpName { return OpCrawlAllHistoricalRecords }
func (UpdateRecordsByPeriodList) Name() OpName { return OpUpdateRecordsByPeriodList }
func (UpdateRecordsForYear) Name() OpName      { return OpUpdateRecordsForYear }
func (Shutdown) Name() OpName                  { return OpShutdown }
func (Restart) Name() OpName                   { return OpRestart }
func (u UnknownOperation) Name() OpName        { return u.OpName }

func (GetCurrentState) operation()           {}
func (UpdateLatestRecord) operation()        {}
func (GetNextPeriodIdentifier) operation()   {}
func (UpdateAllPendingEntries) operation()   {}
func (GetPendingEntries) operation()         {}
func (GetSettledEntries) operation()         {}
func (GenerateBatchEntries) operation()      {}
func (DeprecateLastBatch) operation()        {}
func (CrawlAllHistoricalRecords) operation() {}
func (UpdateRecordsByPeriodList) operation() {}
func (UpdateRecordsForYear) operation()      {}
func (Shutdown) operation()                  {}
func (Restart) operation()                   {}
func (UnknownOperation) operation()          {}

var unitOperations = map[OpName]Operation{
	OpGetCurrentState:           GetCurrentState{},
	OpUpdateLatestRecord:        UpdateLatestRecord{},
	OpGetNextPeriodIdentifier:   GetNextPeriodIdentifier{},
	OpUpdateAllPendingEntries:   UpdateAllPendingEntries{},
	OpGetPendingEntries:         GetPendingEntries{},
	OpGetSettledEntries:         GetSettledEntries{},
	OpGenerateBatchEntries:      GenerateBatchEntries{},
	OpDeprecateLastBatch:        DeprecateLastBatch{},
	OpCrawlAllHistoricalRecords: CrawlAllHistoricalRecords{},
	OpShutdown:                  Shutdown{},
	OpRestart:                   Restart{},
}

// OperationNames lists every known operation in declaration order.
func OperationNames() []OpName {
	return []OpName{
		OpGetCurrentState,
		OpUpdateLatestRecord,
		OpGetNextPeriodIdentifier,
		OpUpdateAllPendingEntries,
		OpGetPendingEntries,
		OpGetSettledEntries,
		OpGenerateBatchEntries,
		OpDeprecateLastBatch,
		OpCrawlAllHistoricalRecords,
		OpUpdateRecordsByPeriodList,
		OpUpdateRecordsForYear,
		OpShutdown,
		OpRestart,
	}
}

// MarshalOperation encodes unit operations as their bare name and
// parameterized operations as a single-key object.
func MarshalOperation(op Operation) ([]byte, error) {
	switch v := op.(type) {
	case nil:
		return nil, fmt.Errorf("%w: nil operation", ErrMalformedOperation)
	case UpdateRecordsByPeriodList:
		periods := v.Periods
		if periods == nil {
			periods = []string{}
		}
		return json.Marshal(map[OpName][]string{OpUpdateRecordsByPeriodList: periods})
	case UpdateRecordsForYear:
		return json.Marshal(map[OpName]int{OpUpdateRecordsForYear: v.Year})
	case UnknownOperation:
		if len(v.Params) > 0 {
			return json.Marshal(map[OpName]json.RawMessage{v.OpName: v.Params})
		}
		return json.Marshal(string(v.OpName))
	default:
		return json.Marshal(string(op.Name()))
	}
}

// UnmarshalOperation decodes the forms produced by MarshalOperation. Names it
// does not know become UnknownOperation values.
func UnmarshalOperation(data []byte) (Operation, error) {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		if op, ok := unitOperations[OpName(name)]; ok {
			return op, nil
		}
		switch OpName(name) {
		case OpUpdateRecordsByPeriodList, OpUpdateRecordsForYear:
			return nil, fmt.Errorf("%w: %s requires parameters", ErrMalformedOperation, name)
		}
		return UnknownOperation{OpName: OpName(name)}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || len(obj) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrMalformedOperation, string(data))
	}
	for key, raw := range obj {
		switch OpName(key) {
		case OpUpdateRecordsByPeriodList:
			var periods []string
			if err := json.Unmarshal(raw, &periods); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOperation, key, err)
			}
			return UpdateRecordsByPeriodList{Periods: periods}, nil
		case OpUpdateRecordsForYear:
			var year int
			if err := json.Unmarshal(raw, &year); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedOperation, key, err)
			}
			return UpdateRecordsForYear{Year: year}, nil
		}
		if _, ok := unitOperations[OpName(key)]; ok {
			return nil, fmt.Errorf("%w: %s takes no parameters", ErrMalformedOperation, key)
		}
		return UnknownOperation{OpName: OpName(key), Params: raw}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMalformedOperation, string(data))
}

// ParseOperation builds an operation from a case-insensitive name and
// positional arguments, as typed on a command line.
func ParseOperation(name string, args []string) (Operation, error) {
	name = strings.TrimSpace(name)
	var resolved OpName
	for _, candidate := range OperationNames() {
		if strings.EqualFold(string(candidate), name) {
			resolved = candidate
			break
		}
	}
	if resolved == "" {
		return nil, fmt.Errorf("unknown operation %q", name)
	}

	switch resolved {
	case OpUpdateRecordsByPeriodList:
		periods := make([]string, 0, len(args))
		for _, arg := range args {
			for _, part := range strings.Split(arg, ",") {
				if part = strings.TrimSpace(part); part != "" {
					periods = append(periods, part)
				}
			}
		}
		if len(periods) == 0 {
			return nil, fmt.Errorf("%s requires at least one period", resolved)
		}
		return UpdateRecordsByPeriodList{Periods: periods}, nil
	case OpUpdateRecordsForYear:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s requires exactly one year", resolved)
		}
		year, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid year %q", resolved, args[0])
		}
		return UpdateRecordsForYear{Year: year}, nil
	}
	if len(args) > 0 {
		return nil, fmt.Errorf("%s takes no arguments", resolved)
	}
	return unitOperations[resolved], nil
}
