package diag

// Reporter is the minimal contract phases use to hand over diagnostics.
type Reporter interface {
	Report(d Diagnostic)
}

// BagReporter stores reported diagnostics in a Bag.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(d Diagnostic) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(d)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}

// Warn is a shortcut for reporting a file-level warning.
func Warn(r Reporter, code Code, file, msg string) {
	if r == nil {
		return
	}
	r.Report(Warning(code, file, msg))
}
