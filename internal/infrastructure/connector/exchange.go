package connector

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/partsync/backend/internal/domain/datasync"
	"github.com/partsync/backend/internal/infrastructure/config"
	"golang.org/x/text/encoding/ianaindex"
)

// ExchangeColumns is the flattened layout of one application record.
var ExchangeColumns = []string{
	"app_id", "action", "base_vehicle_id", "part_type_id", "position_id",
	"quantity", "part_number", "brand", "qualifiers", "notes",
	"vcdb_version", "pcdb_version", "qdb_version",
}

const exchangeDateLayout = "2006-01-02"

type exchangeHeader struct {
	Company         string `xml:"Company"`
	SenderName      string `xml:"SenderName"`
	TransferDate    string `xml:"TransferDate"`
	BrandAAIAID     string `xml:"BrandAAIAID"`
	DocumentTitle   string `xml:"DocumentTitle"`
	EffectiveDate   string `xml:"EffectiveDate"`
	SubmissionType  string `xml:"SubmissionType"`
	VcdbVersionDate string `xml:"VcdbVersionDate"`
	QdbVersionDate  string `xml:"QdbVersionDate"`
	PcdbVersionDate string `xml:"PcdbVersionDate"`
}

type idAttr struct {
	ID string `xml:"id,attr"`
}

type exchangeQual struct {
	ID     string `xml:"id,attr"`
	Params []struct {
		Value string `xml:"value,attr"`
	} `xml:"param"`
	Text string `xml:"text"`
}

type exchangeApp struct {
	ID          string         `xml:"id,attr"`
	Action      string         `xml:"action,attr"`
	BaseVehicle idAttr         `xml:"BaseVehicle"`
	Quals       []exchangeQual `xml:"Qual"`
	Notes       []string       `xml:"Note"`
	Qty         string         `xml:"Qty"`
	PartType    idAttr         `xml:"PartType"`
	Position    idAttr         `xml:"Position"`
	Part        string         `xml:"Part"`
	BrandAAIAID string         `xml:"BrandAAIAID"`
}

type exchangeFooter struct {
	RecordCount string `xml:"RecordCount"`
}

// exchangeStream decodes an application exchange document one record at a
// time. The header must come first, and at the end of the document the
// footer record count must match what was read, which catches truncated
// transfers.
type exchangeStream struct {
	rc      io.Closer
	dec     *xml.Decoder
	cfg     *config.ReferenceSourceConfig
	header  *exchangeHeader
	footer  *exchangeFooter
	records int
	done    bool
}

func newExchangeStream(rc io.ReadCloser, cfg *config.ReferenceSourceConfig) (rowStream, error) {
	dec := xml.NewDecoder(rc)
	dec.CharsetReader = func(label string, input io.Reader) (io.Reader, error) {
		enc, err := ianaindex.IANA.Encoding(label)
		if err != nil {
			return nil, err
		}
		if enc == nil {
			return nil, fmt.Errorf("unsupported charset %s", label)
		}
		return enc.NewDecoder().Reader(input), nil
	}
	return &exchangeStream{rc: rc, dec: dec, cfg: cfg}, nil
}

func (s *exchangeStream) Header() []string { return ExchangeColumns }
func (s *exchangeStream) Close() error     { return s.rc.Close() }

func (s *exchangeStream) Next() (fileRow, error) {
	if s.done {
		return fileRow{}, io.EOF
	}
	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			if err := s.finish(); err != nil {
				return fileRow{}, err
			}
			return fileRow{}, io.EOF
		}
		if err != nil {
			return fileRow{}, fmt.Errorf("malformed exchange document: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "Header":
			var h exchangeHeader
			if err := s.dec.DecodeElement(&h, &start); err != nil {
				return fileRow{}, fmt.Errorf("malformed exchange header: %w", err)
			}
			if err := checkVersions(s.cfg, &h); err != nil {
				return fileRow{}, err
			}
			s.header = &h
		case "App":
			if s.header == nil {
				return fileRow{}, s.fail("application record before header")
			}
			var app exchangeApp
			if err := s.dec.DecodeElement(&app, &start); err != nil {
				return fileRow{}, fmt.Errorf("malformed application record %d: %w", s.records+1, err)
			}
			s.records++
			return flattenApp(&app, s.header), nil
		case "Asset":
			if err := s.dec.Skip(); err != nil {
				return fileRow{}, fmt.Errorf("malformed asset record: %w", err)
			}
			s.records++
		case "Footer":
			var f exchangeFooter
			if err := s.dec.DecodeElement(&f, &start); err != nil {
				return fileRow{}, fmt.Errorf("malformed exchange footer: %w", err)
			}
			s.footer = &f
		}
	}
}

func (s *exchangeStream) finish() error {
	if s.header == nil {
		return s.fail("exchange document has no header")
	}
	if s.footer == nil {
		return s.fail("exchange document has no footer, transfer may be truncated")
	}
	declared, err := strconv.Atoi(strings.TrimSpace(s.footer.RecordCount))
	if err != nil {
		return s.fail("footer record count " + quote(s.footer.RecordCount) + " is not a number")
	}
	if declared != s.records {
		return s.fail(fmt.Sprintf("footer declares %d records but %d were read", declared, s.records))
	}
	return nil
}

func (s *exchangeStream) fail(msg string) error {
	return datasync.NewConfigurationError("connector "+s.cfg.Name, msg, nil)
}

// checkVersions rejects documents built against vocabularies older than
// the configured minimums.
func checkVersions(cfg *config.ReferenceSourceConfig, h *exchangeHeader) error {
	versions := map[string]string{
		"vcdb": h.VcdbVersionDate,
		"pcdb": h.PcdbVersionDate,
		"qdb":  h.QdbVersionDate,
	}
	for vocab, minRaw := range cfg.MinVersions {
		vocab = strings.ToLower(vocab)
		got, known := versions[vocab]
		if !known {
			return datasync.NewConfigurationError("connector "+cfg.Name, "unknown vocabulary "+quote(vocab)+" in min_versions", nil)
		}
		minDate, err := time.Parse(exchangeDateLayout, minRaw)
		if err != nil {
			return datasync.NewConfigurationError("connector "+cfg.Name, "invalid minimum version for "+vocab, err)
		}
		if strings.TrimSpace(got) == "" {
			return datasync.NewConfigurationError("connector "+cfg.Name, "header has no "+vocab+" version", nil)
		}
		gotDate, err := time.Parse(exchangeDateLayout, strings.TrimSpace(got))
		if err != nil {
			return datasync.NewConfigurationError("connector "+cfg.Name, "invalid "+vocab+" version "+quote(got), err)
		}
		if gotDate.Before(minDate) {
			return datasync.NewConfigurationError("connector "+cfg.Name,
				fmt.Sprintf("%s version %s is older than required %s", vocab, got, minRaw), nil)
		}
	}
	return nil
}

func flattenApp(app *exchangeApp, h *exchangeHeader) fileRow {
	brand := strings.TrimSpace(app.BrandAAIAID)
	if brand == "" {
		brand = strings.TrimSpace(h.BrandAAIAID)
	}

	quals := make([]string, 0, len(app.Quals))
	for _, q := range app.Quals {
		params := make([]string, 0, len(q.Params))
		for _, p := range q.Params {
			params = append(params, strings.TrimSpace(p.Value))
		}
		quals = append(quals, strings.TrimSpace(q.ID)+"("+strings.Join(params, ",")+")")
	}

	notes := make([]string, 0, len(app.Notes))
	for _, n := range app.Notes {
		if n = strings.TrimSpace(n); n != "" {
			notes = append(notes, n)
		}
	}

	id := strings.TrimSpace(app.ID)
	return fileRow{
		id: "app " + id,
		values: []string{
			id,
			strings.TrimSpace(app.Action),
			strings.TrimSpace(app.BaseVehicle.ID),
			strings.TrimSpace(app.PartType.ID),
			strings.TrimSpace(app.Position.ID),
			strings.TrimSpace(app.Qty),
			strings.TrimSpace(app.Part),
			brand,
			strings.Join(quals, ";"),
			strings.Join(notes, "; "),
			strings.TrimSpace(h.VcdbVersionDate),
			strings.TrimSpace(h.PcdbVersionDate),
			strings.TrimSpace(h.QdbVersionDate),
		},
	}
}
