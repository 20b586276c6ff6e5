package asset

import "fmt"

// BundleBehavior controls where the bundler places an asset.
type BundleBehavior uint8

const (
	BehaviorDefault BundleBehavior = iota
	BehaviorInline
	BehaviorIsolated
)

func (b BundleBehavior) String() string {
	switch b {
	case BehaviorDefault:
		return "default"
	case BehaviorInline:
		return "inline"
	case BehaviorIsolated:
		return "isolated"
	}
	return fmt.Sprintf("BundleBehavior(%d)", uint8(b))
}

// SpecifierType is the module system a specifier was written in.
type SpecifierType uint8

const (
	SpecifierESM SpecifierType = iota
	SpecifierCommonJS
)

func (s SpecifierType) String() string {
	if s == SpecifierCommonJS {
		return "commonjs"
	}
	return "esm"
}

// Priority says whether a dependency is needed before the importer runs.
type Priority uint8

const (
	PrioritySync Priority = iota
	// PriorityLazy marks an import() boundary.
	PriorityLazy
)

func (p Priority) String() string {
	if p == PriorityLazy {
		return "lazy"
	}
	return "sync"
}
