package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/platterworks/drivebatch/drivepipe"
)

// WriteCSV writes the drives sheet as CSV in the same fixed column order as
// the workbook. Parse errors are not included; CSV consumers want one flat
// table.
func WriteCSV(w io.Writer, res *drivepipe.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range groupRows(res.Groups) {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
