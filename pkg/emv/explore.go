package emv

import (
	"fmt"
	"strings"

	"github.com/gregLibert/vsmartcard/pkg/iso7816"
	"github.com/rs/zerolog"
)

// PSE EXPLORATION:
// The terminal side of application selection by directory (EMV Book 1, 12.3.2):
// 1. SELECT '1PAY.SYS.DDF01' and read the directory SFI from the FCI.
// 2. READ RECORD 1, 2, ... on that SFI until the card answers '6A83'.
// 3. SELECT every AID listed in the directory records.

// MaxDirectoryRecords bounds the READ RECORD loop of step 2.
const MaxDirectoryRecords = 30

// SelectedApplication is the outcome of selecting one directory entry.
type SelectedApplication struct {
	AID    []byte
	Status iso7816.StatusWord
	// FCI is nil when the selection failed or its answer could not be parsed.
	FCI *FCI
}

// Exploration gathers what a PSE walk found on the card.
type Exploration struct {
	PSE          *FCI
	Records      []*DirectoryRecord
	Applications []SelectedApplication
}

// Explore runs the three steps over client. Card statuses other than the
// end-of-directory marker are reported in the result; only transmission
// failures and a missing PSE are errors.
func Explore(client *iso7816.Client, log zerolog.Logger) (*Exploration, error) {
	cls, _ := iso7816.NewClass(0x00)
	exp := &Exploration{}

	trace, err := client.Send(iso7816.SelectByAID(cls, []byte(PSEName)))
	if err != nil {
		return nil, fmt.Errorf("select PSE: %w", err)
	}
	if !trace.IsSuccess() {
		return nil, fmt.Errorf("select PSE: %s", trace.Status().Verbose())
	}
	exp.PSE, err = ParseFCI(trace.Data())
	if err != nil {
		return nil, fmt.Errorf("parse PSE FCI: %w", err)
	}

	sfi := exp.PSE.DirectorySFI()
	log.Debug().Uint8("sfi", sfi).Msg("PSE selected")
	if sfi == 0 {
		return exp, nil
	}

	for rec := byte(1); rec <= MaxDirectoryRecords; rec++ {
		trace, err := client.Send(iso7816.ReadRecord(cls, sfi, rec))
		if err != nil {
			return exp, fmt.Errorf("read record %d: %w", rec, err)
		}
		if trace.Status() == iso7816.SW_ERR_RECORD_NOT_FOUND {
			break
		}
		if !trace.IsSuccess() {
			log.Warn().Uint8("record", rec).Str("status", trace.Status().Verbose()).Msg("directory read stopped")
			break
		}

		record, err := ParseDirectoryRecord(trace.Data())
		if err != nil {
			log.Warn().Err(err).Uint8("record", rec).Msg("skipping unparsable directory record")
			continue
		}
		exp.Records = append(exp.Records, record)
	}

	for _, record := range exp.Records {
		for _, app := range record.Applications {
			if len(app.AID) == 0 {
				continue
			}
			selected, err := selectApplication(client, cls, app.AID)
			if err != nil {
				return exp, err
			}
			exp.Applications = append(exp.Applications, selected)
		}
	}

	return exp, nil
}

func selectApplication(client *iso7816.Client, cls iso7816.Class, aid []byte) (SelectedApplication, error) {
	trace, err := client.Send(iso7816.SelectByAID(cls, aid))
	if err != nil {
		return SelectedApplication{}, fmt.Errorf("select %X: %w", aid, err)
	}

	out := SelectedApplication{AID: aid, Status: trace.Status()}
	if trace.IsSuccess() {
		if fci, err := ParseFCI(trace.Data()); err == nil {
			out.FCI = fci
		}
	}
	return out, nil
}

// Describe renders every structure found during the walk.
func (e *Exploration) Describe() string {
	var sb strings.Builder

	sb.WriteString(e.PSE.Describe())
	for _, record := range e.Records {
		sb.WriteString("\n")
		sb.WriteString(record.Describe())
	}
	for _, app := range e.Applications {
		sb.WriteString("\n")
		if app.FCI == nil {
			fmt.Fprintf(&sb, "=== APPLICATION %X: %s ===", app.AID, app.Status.Verbose())
			continue
		}
		sb.WriteString(app.FCI.Describe())
	}

	return sb.String()
}
