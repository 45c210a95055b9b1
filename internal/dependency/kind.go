package dependency

// Category is the module system a reference belongs to.
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryESM
	CategoryCommonJS
	CategoryURL
	CategoryWorker
	CategoryCSSImport
)

var categoryNames = [...]string{
	CategoryUnknown:   "unknown",
	CategoryESM:       "esm",
	CategoryCommonJS:  "commonjs",
	CategoryURL:       "url",
	CategoryWorker:    "worker",
	CategoryCSSImport: "css-import",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// Type is the fine-grained kind of a reference.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeEntry
	TypeEsmImport
	TypeEsmExport
	TypeDynamicImport
	TypeCjsRequire
	TypeModuleHotAccept
	TypeModuleHotDecline
	TypeURL
	TypeWorker
)

var typeNames = [...]string{
	TypeUnknown:          "unknown",
	TypeEntry:            "entry",
	TypeEsmImport:        "esm import",
	TypeEsmExport:        "esm export",
	TypeDynamicImport:    "dynamic import",
	TypeCjsRequire:       "cjs require",
	TypeModuleHotAccept:  "module.hot.accept",
	TypeModuleHotDecline: "module.hot.decline",
	TypeURL:              "new URL()",
	TypeWorker:           "new Worker()",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}
