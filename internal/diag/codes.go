package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Скрипты: загрузка и структура
	ScrInfo            Code = 1000
	ScrDecode          Code = 1001
	ScrUnknownOp       Code = 1002
	ScrMissingOperand  Code = 1003
	ScrBadBorrowKind   Code = 1004
	ScrBadExpectation  Code = 1005
	ScrUnknownFormat   Code = 1006
	ScrEmpty           Code = 1007
	ScrUnknownScenario Code = 1008

	// Ожидания сценариев
	ScrExpectationUnmet    Code = 1100
	ScrUnexpectedViolation Code = 1101

	// Нарушения правил владения
	BrwInfo                 Code = 4000
	BrwUseAfterMove         Code = 4001
	BrwAliasConflict        Code = 4002
	BrwDanglingBorrow       Code = 4003
	BrwBorrowedWhileMoving  Code = 4004
	BrwAssignToImmutable    Code = 4005
	BrwMutBorrowOfImmutable Code = 4006
	BrwWriteThroughShared   Code = 4007
	BrwUnresolvedName       Code = 4008
	BrwUnbalancedScope      Code = 4009
	BrwInvalidOperand       Code = 4010

	IOLoadFileError Code = 5001

	ObsInfo    Code = 6000
	ObsTimings Code = 6001
)

var (
	codeDescription = map[Code]string{
		UnknownCode:             "Unknown error",
		ScrInfo:                 "Script information",
		ScrDecode:               "Script cannot be decoded",
		ScrUnknownOp:            "Unknown operation",
		ScrMissingOperand:       "Operation is missing an operand",
		ScrBadBorrowKind:        "Invalid borrow kind",
		ScrBadExpectation:       "Invalid expectation",
		ScrUnknownFormat:        "Unknown script format",
		ScrEmpty:                "Script has no operations",
		ScrUnknownScenario:      "Unknown built-in scenario",
		ScrExpectationUnmet:     "Expected violation did not occur",
		ScrUnexpectedViolation:  "Violation differs from expectation",
		BrwInfo:                 "Ownership information",
		BrwUseAfterMove:         "use of moved value",
		BrwAliasConflict:        "conflicting borrows",
		BrwDanglingBorrow:       "value does not live long enough",
		BrwBorrowedWhileMoving:  "cannot move out of borrowed value",
		BrwAssignToImmutable:    "cannot assign twice to immutable binding",
		BrwMutBorrowOfImmutable: "cannot borrow immutable value as mutable",
		BrwWriteThroughShared:   "cannot write through a shared reference",
		BrwUnresolvedName:       "cannot find value in this scope",
		BrwUnbalancedScope:      "scope exit without matching entry",
		BrwInvalidOperand:       "operation not applicable to a borrow",
		IOLoadFileError:         "I/O load file error",
		ObsInfo:                 "Observability information",
		ObsTimings:              "Pipeline timings",
	}
)

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("SCR%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("BRW%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 6000 && ic < 7000:
		return fmt.Sprintf("OBS%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
