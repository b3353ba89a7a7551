package frequency

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/chrissnell/designflood/pkg/hydroerr"
)

// fieldSeparators matches the separators accepted between the year and the
// discharge when a table is pasted from a spreadsheet or a report.
var fieldSeparators = regexp.MustCompile(`[\s,|:*/&%#@!;，。]+`)

// ParseFloods reads one "year discharge" pair per line. Blank lines and lines
// starting with "//" are skipped.
func ParseFloods(r io.Reader) ([]FloodRecord, error) {
	var floods []FloodRecord
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		cells := fieldSeparators.Split(text, -1)
		if len(cells) < 2 {
			return nil, &hydroerr.InputError{Field: "floods", Message: fmt.Sprintf("line %d: expected year and discharge, got %q", line, text)}
		}
		year, err := strconv.Atoi(cells[0])
		if err != nil {
			return nil, &hydroerr.InputError{Field: "floods", Message: fmt.Sprintf("line %d: bad year %q", line, cells[0])}
		}
		q, err := strconv.ParseFloat(cells[1], 64)
		if err != nil {
			return nil, &hydroerr.InputError{Field: "floods", Message: fmt.Sprintf("line %d: bad discharge %q", line, cells[1])}
		}
		floods = append(floods, FloodRecord{Year: year, Discharge: q})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading flood table: %w", err)
	}
	return floods, nil
}

// ParseFloodsString is ParseFloods over a string.
func ParseFloodsString(s string) ([]FloodRecord, error) {
	return ParseFloods(strings.NewReader(s))
}
