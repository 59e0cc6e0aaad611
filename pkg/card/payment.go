package card

import (
	"bytes"
	"fmt"

	"github.com/gregLibert/vsmartcard/pkg/emv"
	"github.com/gregLibert/vsmartcard/pkg/iso7816"
	"github.com/rs/zerolog"
)

// PAYMENT CARD:
// A contact EMV card exposing a Payment System Environment. The PSE directory
// lives in SFI 1 with one application per record:
//
//   SELECT '1PAY.SYS.DDF01'     -> 6F { 84 name, A5 { 88 01 } } 9000
//   READ RECORD n, SFI 1        -> 70 { 61 { 4F aid, 50 label, 87 prio } } 9000
//   SELECT aid (full or prefix) -> 6F { 84 aid, A5 { 50 label, 87 prio } } 9000
//
// Answers never use 61XX. A response that does not fit Ne is refused with
// 6CXX so the reader re-sends with the right Le.

// DirectorySFI is the short file identifier of the PSE directory.
const DirectorySFI = 1

const noApp = -1

// Payment emulates an EMV card with a PSE and a fixed set of applications.
type Payment struct {
	atr     []byte
	apps    []emv.ApplicationTemplate
	log     zerolog.Logger
	pseFCI  []byte
	appFCI  [][]byte
	records [][]byte

	// Current selection: the PSE, one application, or nothing.
	pseSelected bool
	selected    int
}

// NewPayment encodes the PSE and application structures once and returns a
// powered-off card with nothing selected.
func NewPayment(atr []byte, apps []emv.ApplicationTemplate, log zerolog.Logger) (*Payment, error) {
	p := &Payment{
		atr:      atrOrDefault(atr),
		apps:     apps,
		log:      log,
		selected: noApp,
	}

	var err error
	if p.pseFCI, err = emv.NewPSEFCI(DirectorySFI).Encode(); err != nil {
		return nil, err
	}
	for i := range apps {
		fci, err := emv.NewApplicationFCI(apps[i]).Encode()
		if err != nil {
			return nil, fmt.Errorf("application %X: %w", apps[i].AID, err)
		}
		record := &emv.DirectoryRecord{Applications: apps[i : i+1]}
		rec, err := record.Encode()
		if err != nil {
			return nil, fmt.Errorf("application %X: %w", apps[i].AID, err)
		}
		p.appFCI = append(p.appFCI, fci)
		p.records = append(p.records, rec)
	}
	return p, nil
}

func (p *Payment) ATR() []byte {
	return p.atr
}

func (p *Payment) PowerOn() {
	p.clearSelection()
}

func (p *Payment) PowerOff() {
	p.clearSelection()
}

func (p *Payment) Reset() {
	p.clearSelection()
}

func (p *Payment) clearSelection() {
	p.pseSelected = false
	p.selected = noApp
}

func (p *Payment) HandleAPDU(raw []byte) []byte {
	cmd, resp := p.dispatch(raw)

	ev := p.log.Debug().Hex("apdu", raw).Stringer("sw", resp.Status)
	if cmd != nil {
		ev = ev.Stringer("cmd", cmd)
	}
	ev.Msg("payment card answered")

	return resp.Bytes()
}

func (p *Payment) dispatch(raw []byte) (*iso7816.CommandAPDU, *iso7816.ResponseAPDU) {
	cmd, err := iso7816.ParseCommandAPDU(raw)
	if err != nil {
		return nil, status(headerFailure(raw))
	}
	if !cmd.Class.Interindustry() {
		return cmd, status(iso7816.SW_ERR_CLA_NOT_SUPPORTED)
	}
	if cmd.Class.Channel != 0 {
		return cmd, status(iso7816.SW_ERR_LOGICAL_CHANNEL_NS)
	}
	if cmd.Class.SecureMessaging != iso7816.SMNone {
		return cmd, status(iso7816.SW_ERR_SECURE_MESSAGING_NS)
	}

	switch cmd.Instruction.Raw {
	case iso7816.INS_SELECT:
		return cmd, p.selectFile(cmd)
	case iso7816.INS_READ_RECORD:
		return cmd, p.readRecord(cmd)
	default:
		return cmd, status(iso7816.SW_ERR_INS_INVALID)
	}
}

// headerFailure picks the status for an APDU that does not decode.
func headerFailure(raw []byte) iso7816.StatusWord {
	if len(raw) >= iso7816.HeaderLen {
		if raw[0] == 0xFF {
			return iso7816.SW_ERR_CLA_NOT_SUPPORTED
		}
		if hi := raw[1] & 0xF0; hi == 0x60 || hi == 0x90 {
			return iso7816.SW_ERR_INS_INVALID
		}
	}
	return iso7816.SW_ERR_WRONG_LENGTH
}

func (p *Payment) selectFile(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	req, err := iso7816.ParseSelect(cmd)
	if err != nil {
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_DATA)
	}
	if req.Method != iso7816.SelectByDFName {
		return status(iso7816.SW_ERR_FUNC_NOT_SUPPORTED)
	}
	if req.Control != iso7816.ReturnFCI && req.Control != iso7816.ReturnNoData {
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}

	var fci []byte
	if string(req.Target) == emv.PSEName {
		if req.Occurrence != iso7816.FirstOrOnlyOccurrence {
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
		p.pseSelected, p.selected = true, noApp
		fci = p.pseFCI
	} else {
		idx := p.findApplication(req.Target, req.Occurrence)
		if idx == noApp {
			return status(iso7816.SW_ERR_FILE_NOT_FOUND)
		}
		p.pseSelected, p.selected = false, idx
		fci = p.appFCI[idx]
	}

	if req.Control == iso7816.ReturnNoData {
		return status(iso7816.SW_NO_ERROR)
	}
	return fit(fci, cmd.Ne)
}

// findApplication resolves a full or partial DF name. Next and Previous are
// relative to the application currently selected.
func (p *Payment) findApplication(name []byte, occ iso7816.FileOccurrence) int {
	var matches []int
	for i, app := range p.apps {
		if bytes.HasPrefix(app.AID, name) {
			matches = append(matches, i)
		}
	}
	if len(matches) == 0 {
		return noApp
	}

	switch occ {
	case iso7816.FirstOrOnlyOccurrence:
		return matches[0]
	case iso7816.LastOccurrence:
		return matches[len(matches)-1]
	case iso7816.NextOccurrence:
		for _, i := range matches {
			if i > p.selected {
				return i
			}
		}
	case iso7816.PreviousOccurrence:
		for j := len(matches) - 1; j >= 0; j-- {
			if p.selected != noApp && matches[j] < p.selected {
				return matches[j]
			}
		}
	}
	return noApp
}

func (p *Payment) readRecord(cmd *iso7816.CommandAPDU) *iso7816.ResponseAPDU {
	req, err := iso7816.ParseReadRecord(cmd)
	if err != nil {
		return status(iso7816.SW_ERR_INCORRECT_PARAMS_P1P2)
	}

	sfi := req.SFI
	if sfi == 0 && p.pseSelected {
		sfi = DirectorySFI
	}
	// The directory EF belongs to the PSE: it is only reachable while the PSE is selected.
	if sfi != DirectorySFI || !p.pseSelected {
		return status(iso7816.SW_ERR_FILE_NOT_FOUND)
	}
	if req.Mode != iso7816.RefByNum_ReadP1 {
		return status(iso7816.SW_ERR_FUNC_NOT_SUPPORTED)
	}
	if req.Record == 0 || int(req.Record) > len(p.records) {
		return status(iso7816.SW_ERR_RECORD_NOT_FOUND)
	}

	return fit(p.records[req.Record-1], req.Ne)
}

// fit answers data with 9000, or with 6CXX when Ne is set and too small.
func fit(data []byte, ne int) *iso7816.ResponseAPDU {
	if ne > 0 && len(data) > ne {
		// 6C00 stands for 256.
		return status(iso7816.WrongLe(byte(len(data))))
	}
	return iso7816.NewResponseAPDU(data, iso7816.SW_NO_ERROR)
}

func status(sw iso7816.StatusWord) *iso7816.ResponseAPDU {
	return iso7816.NewResponseAPDU(nil, sw)
}
