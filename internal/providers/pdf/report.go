package pdf

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ReportData is the filtered invoice list exported by the billing console.
type ReportData struct {
	Title       string
	GeneratedAt string
	FilterLabel string
	Summary     []SummaryLine
	Rows        []ReportRow
}

type SummaryLine struct {
	Label  string
	Count  int
	Amount string
}

type ReportRow struct {
	Number  string
	Tenant  string
	CNPJ    string
	Plan    string
	Status  string
	Period  string
	DueDate string
	Amount  string
}

var reportHeader = []struct {
	title string
	size  int
	right bool
}{
	{"Número", 1, false},
	{"Prefeitura", 3, false},
	{"CNPJ", 2, false},
	{"Plano", 1, false},
	{"Status", 1, false},
	{"Período", 1, false},
	{"Vencimento", 1, false},
	{"Valor", 2, true},
}

func (p *PDFProvider) GenerateInvoiceReport(ctx context.Context, report ReportData) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithPageNumber(props.PageNumber{
			Pattern: "Página {current} de {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, report.Title, props.Text{
			Size:  16,
			Style: fontstyle.Bold,
		}),
	)
	m.AddRow(6,
		text.NewCol(6, "Gerado em "+report.GeneratedAt, props.Text{Size: 8}),
		text.NewCol(6, report.FilterLabel, props.Text{Size: 8, Align: align.Right}),
	)

	for _, line := range report.Summary {
		m.AddRow(6,
			text.NewCol(3, line.Label, props.Text{Size: 9, Style: fontstyle.Bold}),
			text.NewCol(1, strconv.Itoa(line.Count), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, line.Amount, props.Text{Size: 9, Align: align.Right}),
			col.New(5),
		)
	}

	headerCols := make([]core.Col, 0, len(reportHeader))
	for _, h := range reportHeader {
		headerCols = append(headerCols, text.NewCol(h.size, h.title, props.Text{
			Size:  8,
			Style: fontstyle.Bold,
			Align: alignment(h.right),
			Top:   2,
		}))
	}
	m.AddRow(10, headerCols...)

	for _, r := range report.Rows {
		values := []string{r.Number, r.Tenant, r.CNPJ, r.Plan, r.Status, r.Period, r.DueDate, r.Amount}
		cols := make([]core.Col, 0, len(values))
		for i, v := range values {
			cols = append(cols, text.NewCol(reportHeader[i].size, v, props.Text{
				Size:  8,
				Align: alignment(reportHeader[i].right),
			}))
		}
		m.AddRow(6, cols...)
	}

	if len(report.Rows) == 0 {
		m.AddRow(8, text.NewCol(12, "Nenhuma fatura encontrada", props.Text{Size: 9, Align: align.Center}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func alignment(right bool) align.Type {
	if right {
		return align.Right
	}
	return align.Left
}
