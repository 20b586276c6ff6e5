package diag

import "fmt"

type Code uint16

const (
	UnknownCode Code = 0

	// Resolution
	WarnUnmatchedGlob Code = 1001

	// Transform
	WarnDuplicateAsset Code = 2001

	// Packaging
	WarnUnusedImport     Code = 3001
	WarnExportStarCycle  Code = 3002
	WarnSourceMapMissing Code = 3003

	// Emit
	InfoDistCleaned Code = 4001
)

var codeDescription = map[Code]string{
	UnknownCode:          "unknown diagnostic",
	WarnUnmatchedGlob:    "glob pattern matches no files",
	WarnDuplicateAsset:   "asset reached under two paths",
	WarnUnusedImport:     "imported binding is never used",
	WarnExportStarCycle:  "circular export * chain",
	WarnSourceMapMissing: "source map not generated",
	InfoDistCleaned:      "output directory cleaned",
}

// ID returns the short stable identifier, e.g. "PKG3001".
func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return fmt.Sprintf("RES%04d", ic)
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("TRN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("PKG%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("EMT%04d", ic)
	}
	return "W0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
