// Package export renders comparative statements as XLSX workbooks.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/openproc/tender-engine/internal/model"
)

// WriteStatement writes a comparative statement as a two-sheet workbook:
// a summary row per bid and a per-criterion breakdown.
func WriteStatement(w io.Writer, stmt *model.ComparativeStatement) error {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, stmt); err != nil {
		return err
	}
	if err := addBreakdownSheet(f, stmt); err != nil {
		return err
	}

	return eris.Wrap(f.Write(w), "export: write workbook")
}

func addSummarySheet(f *xlsx.File, stmt *model.ComparativeStatement) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"Rank", "Bidder", "Bid ID", "Amount (" + stmt.Currency + ")",
		"Technical", "Financial", "Combined", "Qualified", "Reason", "% above lowest",
	} {
		header.AddCell().Value = h
	}

	for _, cmp := range stmt.Bids {
		row := sheet.AddRow()
		if cmp.Rank != nil {
			row.AddCell().SetInt(*cmp.Rank)
		} else {
			row.AddCell().Value = ""
		}
		row.AddCell().Value = cmp.BidderName
		row.AddCell().Value = cmp.BidID
		addFloatCell(row, cmp.FinancialAmount, "#,##0.00")
		addFloatCell(row, cmp.TechnicalScore, "0.00")
		addFloatCell(row, cmp.FinancialScore, "0.00")
		addFloatCell(row, cmp.CombinedScore, "0.00")
		row.AddCell().SetBool(cmp.IsQualified)
		row.AddCell().Value = cmp.Reason
		addFloatCell(row, cmp.PercentAboveLowest, "0.00")
	}

	return nil
}

func addBreakdownSheet(f *xlsx.File, stmt *model.ComparativeStatement) error {
	sheet, err := f.AddSheet("Criteria")
	if err != nil {
		return eris.Wrap(err, "export: add criteria sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Bidder", "Criterion", "Weight", "Max", "Mandatory", "Average", "Evaluator", "Score", "Remarks"} {
		header.AddCell().Value = h
	}

	for _, cmp := range stmt.Bids {
		for _, bd := range cmp.Criteria {
			if len(bd.Scores) == 0 {
				row := sheet.AddRow()
				fillBreakdownPrefix(row, cmp, bd)
				row.AddCell().Value = "(unscored)"
				continue
			}
			for _, sc := range bd.Scores {
				row := sheet.AddRow()
				fillBreakdownPrefix(row, cmp, bd)
				row.AddCell().Value = sc.EvaluatorID
				row.AddCell().SetFloatWithFormat(sc.Value, "0.00")
				row.AddCell().Value = sc.Remarks
			}
		}
	}

	return nil
}

func fillBreakdownPrefix(row *xlsx.Row, cmp model.BidComparison, bd model.CriterionBreakdown) {
	row.AddCell().Value = cmp.BidderName
	row.AddCell().Value = bd.Name
	row.AddCell().SetFloatWithFormat(bd.Weight, "0.00")
	row.AddCell().SetFloatWithFormat(bd.MaxScore, "0.00")
	row.AddCell().SetBool(bd.Mandatory)
	addFloatCell(row, bd.Average, "0.00")
}

func addFloatCell(row *xlsx.Row, v *float64, format string) {
	cell := row.AddCell()
	if v == nil {
		return
	}
	cell.SetFloatWithFormat(*v, format)
}
