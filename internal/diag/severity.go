package diag

// Severity orders diagnostics. Fatal conditions are errors, not
// diagnostics, so there is no error level.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
)

func (s Severity) String() string {
	if s == SevWarning {
		return "warning"
	}
	return "info"
}
