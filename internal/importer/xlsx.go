package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"pharmaledger/backend/internal/domain"
)

var ErrNoHeader = errors.New("first row must be a header naming at least the product name column")

// headerAliases maps normalized header text to the ImportRow field it fills.
var headerAliases = map[string]string{
	"name":         "name",
	"productname":  "name",
	"product":      "name",
	"description":  "description",
	"barcode":      "barcode",
	"categoryid":   "category_id",
	"category":     "category_name",
	"categoryname": "category_name",
	"supplierid":   "supplier_id",
	"branchid":     "branch_id",
	"price":        "price",
	"sellingprice": "price",
	"costprice":    "cost_price",
	"cost":         "cost_price",
	"stock":        "stock",
	"quantity":     "stock",
	"qty":          "stock",
	"minstock":     "min_stock",
	"maxstock":     "max_stock",
	"unittype":     "unit_type",
	"unit":         "unit_type",
}

// ReadXLSX reads product rows from the first sheet of a workbook. Columns are
// matched by header name; unknown columns are ignored and blank rows skipped.
func ReadXLSX(r io.Reader) ([]domain.ImportRow, error) {
	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	columns := make(map[int]string, len(rows[0]))
	hasName := false
	for i, cell := range rows[0] {
		field, ok := headerAliases[normalizeHeader(cell)]
		if !ok {
			continue
		}
		columns[i] = field
		hasName = hasName || field == "name"
	}
	if !hasName {
		return nil, ErrNoHeader
	}

	result := make([]domain.ImportRow, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		if blank(cells) {
			continue
		}
		var row domain.ImportRow
		for i, cell := range cells {
			if field, ok := columns[i]; ok {
				assign(&row, field, strings.TrimSpace(cell))
			}
		}
		result = append(result, row)
	}
	return result, nil
}

func normalizeHeader(cell string) string {
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return replacer.Replace(strings.ToLower(strings.TrimSpace(cell)))
}

func blank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func assign(row *domain.ImportRow, field string, value string) {
	switch field {
	case "name":
		row.Name = value
	case "description":
		row.Description = value
	case "barcode":
		row.Barcode = value
	case "category_id":
		row.CategoryID = value
	case "category_name":
		row.CategoryName = value
	case "supplier_id":
		row.SupplierID = value
	case "branch_id":
		row.BranchID = value
	case "price":
		row.Price = value
	case "cost_price":
		row.CostPrice = value
	case "stock":
		row.Stock = value
	case "min_stock":
		row.MinStock = value
	case "max_stock":
		row.MaxStock = value
	case "unit_type":
		row.UnitType = value
	}
}
