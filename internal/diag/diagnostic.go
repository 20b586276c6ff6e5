package diag

import "fmt"

// Location points into a file. Start and End are byte offsets; both zero
// means the whole file.
type Location struct {
	File  string
	Start uint32
	End   uint32
}

func (l Location) String() string {
	if l.Start == 0 && l.End == 0 {
		return l.File
	}
	return fmt.Sprintf("%s:%d-%d", l.File, l.Start, l.End)
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  Location
}

func New(sev Severity, code Code, primary Location, msg string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Primary: primary, Message: msg}
}

func Warning(code Code, file, msg string) Diagnostic {
	return New(SevWarning, code, Location{File: file}, msg)
}

// String renders "file: warning [PKG3001]: message".
func (d Diagnostic) String() string {
	if d.Primary.File == "" {
		return fmt.Sprintf("%s [%s]: %s", d.Severity, d.Code.ID(), d.Message)
	}
	return fmt.Sprintf("%s: %s [%s]: %s", d.Primary, d.Severity, d.Code.ID(), d.Message)
}
