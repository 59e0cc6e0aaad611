package iso7816

import (
	"fmt"

	"github.com/gregLibert/vsmartcard/pkg/bits"
)

// READ RECORD COMMAND LOGIC (ISO 7816-4):
// The READ RECORD command (INS 'B2') reads the content of one or more records
// from the current Elementary File (EF) or a specified SFI.
//
// P1 (Record Number or ID):
// - If P2 indicates "Record number" (Bits 3=1), P1 is the record number (00 = current).
// - If P2 indicates "Record identifier" (Bits 3=0), P1 is the record identifier.
//
// P2 (Reference Control):
// - Bits 8-4: Short File Identifier (SFI). If 0, use Current EF.
// - Bit 3:    0=Reference by ID, 1=Reference by Number.
// - Bits 2-1: Occurrence/Mode (First, Last, Next, Prev, or All).

// ReadRecordMode defines how to interpret P1 and which record(s) to read.
type ReadRecordMode byte

const (
	// P1 is Record IDENTIFIER (Bit 3 = 0)
	RefByID_FirstOccurrence    ReadRecordMode = 0b000
	RefByID_LastOccurrence     ReadRecordMode = 0b001
	RefByID_NextOccurrence     ReadRecordMode = 0b010
	RefByID_PreviousOccurrence ReadRecordMode = 0b011

	// P1 is Record NUMBER (Bit 3 = 1)
	RefByNum_ReadP1              ReadRecordMode = 0b100
	RefByNum_ReadAllFromP1       ReadRecordMode = 0b101
	RefByNum_ReadAllFromLastToP1 ReadRecordMode = 0b110
)

func (m ReadRecordMode) String() string {
	switch m {
	case RefByID_FirstOccurrence:
		return "Ref ID: First Occurrence"
	case RefByID_LastOccurrence:
		return "Ref ID: Last Occurrence"
	case RefByID_NextOccurrence:
		return "Ref ID: Next Occurrence"
	case RefByID_PreviousOccurrence:
		return "Ref ID: Previous Occurrence"
	case RefByNum_ReadP1:
		return "Ref Num: Read Record P1"
	case RefByNum_ReadAllFromP1:
		return "Ref Num: Read All from P1"
	case RefByNum_ReadAllFromLastToP1:
		return "Ref Num: Read All from Last to P1"
	default:
		return fmt.Sprintf("Unknown Mode (0x%X)", byte(m))
	}
}

// NewReadRecordCommand creates a raw READ RECORD command.
func NewReadRecordCommand(
	cla Class,
	sfi byte,
	p1 byte,
	mode ReadRecordMode,
) *CommandAPDU {
	// P2 (Table 49): SFI in bits 8-4, mode in bits 3-1.
	p2 := bits.SetRange(byte(mode), 8, 4, sfi)

	ins, _ := NewInstruction(INS_READ_RECORD)

	// Case 2: Le=00 asks for up to 256 bytes.
	return NewCommandAPDU(cla, ins, p1, p2, nil, MaxShortLe)
}

// ReadRecord reads a specific record by its Number (Mode '100').
func ReadRecord(cla Class, sfi byte, recordNumber byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, recordNumber, RefByNum_ReadP1)
}

// ReadAllRecords reads all records starting from startRecordNumber (Mode '101').
func ReadAllRecords(cla Class, sfi byte, startRecordNumber byte) *CommandAPDU {
	return NewReadRecordCommand(cla, sfi, startRecordNumber, RefByNum_ReadAllFromP1)
}

// ReadRecordRequest is a READ RECORD command as seen from the card side.
type ReadRecordRequest struct {
	// SFI is the short file identifier, 0 for the current EF.
	SFI    byte
	Record byte
	Mode   ReadRecordMode
	Ne     int
}

// ByNumber reports whether Record holds a record number rather than an identifier.
func (r ReadRecordRequest) ByNumber() bool {
	return r.Mode&0b100 != 0
}

// ParseReadRecord decodes the parameters of a READ RECORD command.
func ParseReadRecord(cmd *CommandAPDU) (ReadRecordRequest, error) {
	if cmd.Instruction.Raw != INS_READ_RECORD {
		return ReadRecordRequest{}, fmt.Errorf("not a READ RECORD command: %s", cmd.Instruction.Raw)
	}
	if len(cmd.Data) != 0 {
		return ReadRecordRequest{}, fmt.Errorf("unexpected command data (%d bytes)", len(cmd.Data))
	}

	req := ReadRecordRequest{
		SFI:    bits.GetRange(cmd.P2, 8, 4),
		Record: cmd.P1,
		Mode:   ReadRecordMode(bits.GetRange(cmd.P2, 3, 1)),
		Ne:     cmd.Ne,
	}
	if req.SFI == 0x1F {
		return ReadRecordRequest{}, fmt.Errorf("SFI 31 is reserved")
	}
	if req.Mode == 0b111 {
		return ReadRecordRequest{}, fmt.Errorf("reserved reference mode %03b", byte(req.Mode))
	}

	return req, nil
}
