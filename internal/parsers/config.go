package parsers

import (
	"fmt"
	"strings"
)

// ColumnMapping names the spreadsheet columns a source uses for each
// canonical transaction field. Matching is case-insensitive after
// whitespace trim; Aliases lets a deployment accept alternative spellings
// without breaking the template contract.
type ColumnMapping struct {
	GSTIN    string
	Supplier string
	Invoice  string
	Date     string
	Gross    string
	Taxable  string
	IGST     string
	SGST     string
	CGST     string
	Cess     string
	Type     string

	// Aliases maps a lowercased alternative header to the canonical
	// header it stands for.
	Aliases map[string]string
}

// DefaultTemplateMapping returns the mapping for the published books
// template. Header names and order are part of the compatibility surface:
// GSTIN/UIN, Supplier, Invoice, Date, Gross Amt, Taxable, IGST, SGST,
// CGST, Cess, Type.
func DefaultTemplateMapping() *ColumnMapping {
	return &ColumnMapping{
		GSTIN:    "GSTIN/UIN",
		Supplier: "Supplier",
		Invoice:  "Invoice",
		Date:     "Date",
		Gross:    "Gross Amt",
		Taxable:  "Taxable",
		IGST:     "IGST",
		SGST:     "SGST",
		CGST:     "CGST",
		Cess:     "Cess",
		Type:     "Type",
		Aliases: map[string]string{
			"gstin":          "GSTIN/UIN",
			"gstin no":       "GSTIN/UIN",
			"party gstin":    "GSTIN/UIN",
			"supplier name":  "Supplier",
			"party name":     "Supplier",
			"invoice no":     "Invoice",
			"invoice number": "Invoice",
			"inv no":         "Invoice",
			"invoice date":   "Date",
			"gross amount":   "Gross Amt",
			"gross":          "Gross Amt",
			"total":          "Gross Amt",
			"taxable value":  "Taxable",
			"taxable amt":    "Taxable",
			"igst amt":       "IGST",
			"sgst amt":       "SGST",
			"cgst amt":       "CGST",
			"cess amt":       "Cess",
			"invoice type":   "Type",
			"record type":    "Type",
		},
	}
}

// RequiredColumns lists the canonical headers that must be present for a
// file to be accepted. Supplier and Gross Amt are in the template but
// optional: Supplier is informational and Gross Amt is derivable.
func (m *ColumnMapping) RequiredColumns() []string {
	return []string{m.GSTIN, m.Invoice, m.Date, m.Taxable, m.IGST, m.SGST, m.CGST, m.Cess, m.Type}
}

// Validate checks that the mapping names every required column.
func (m *ColumnMapping) Validate() error {
	for _, col := range m.RequiredColumns() {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("column mapping has an empty required column name")
		}
	}
	return nil
}
