package schema

import "strings"

// NormalizeCellType parses a cell type. Empty input selects code.
func NormalizeCellType(value string) (CellType, error) {
	trimmed := CellType(strings.ToLower(strings.TrimSpace(value)))
	if trimmed == "" {
		return CellCode, nil
	}
	if !trimmed.Valid() {
		return "", ErrInvalidCellType
	}
	return trimmed, nil
}

// NormalizeCellOutput validates an output record, defaulting an empty status to idle.
func NormalizeCellOutput(out CellOutput) (CellOutput, error) {
	if out.Status == "" {
		out.Status = CellStatusIdle
	}
	if !out.Status.Valid() {
		return CellOutput{}, ErrInvalidCellStatus
	}
	return out, nil
}

// NormalizeTag trims a tab tag. Empty tags are rejected by returning false.
func NormalizeTag(tag string) (string, bool) {
	tag = strings.TrimSpace(tag)
	return tag, tag != ""
}
