package host

import (
	"fmt"
	"strconv"
	"strings"
)

// Missing marks an empty cell. The host leaves a cell empty when one output
// column has fewer results than another; results are unsigned 16-bit values.
const Missing = -1

// InterruptBanner is printed by the host on its own line when SIGINT stops
// the measurement loop.
const InterruptBanner = "Interrupt received!"

// ParseOutput parses the CSV printed by MV2Host: one line per iteration of
// the measurement script, integer cells. Trailing empty cells are dropped;
// blank lines and the InterruptBanner are skipped.
func ParseOutput(s string) ([][]int, error) {
	var rows [][]int
	for n, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r \t")
		if line == "" || line == InterruptBanner {
			continue
		}
		cells := strings.Split(line, ",")
		for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
			cells = cells[:len(cells)-1]
		}
		row := make([]int, len(cells))
		for i, c := range cells {
			c = strings.TrimSpace(c)
			if c == "" {
				row[i] = Missing
				continue
			}
			v, err := strconv.Atoi(c)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: invalid value %q", n+1, i+1, c)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// FormatRow renders a row back to the host's CSV form.
func FormatRow(row []int) string {
	cells := make([]string, len(row))
	for i, v := range row {
		if v != Missing {
			cells[i] = strconv.Itoa(v)
		}
	}
	return strings.Join(cells, ",")
}
