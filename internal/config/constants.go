package config

// ManifestFileName is the class manifest looked up by FindManifest
const ManifestFileName = "amagic.yaml"

// ManifestFileNames are all recognized manifest file names
var ManifestFileNames = []string{"amagic.yaml", "amagic.yml"}

// Reserved class and method names
const (
	UniversalClassName = "UNIVERSAL"
	AutoloadMethodName = "AUTOLOAD"
	SuperPrefix        = "SUPER::"
	PackageSeparator   = "::"
)

// Overload handler naming.
// A handler for operator "+" lives in the class method map as "(+".
const (
	OverloadPrefix    = "("
	FallbackKey       = "()"
	OverloadMarkerKey = "(("
)

// Limits
const (
	// MaxInheritanceDepth bounds linearization recursion.
	MaxInheritanceDepth = 100
	// MaxDerefChain bounds the number of overloaded dereference hops.
	MaxDerefChain = 100
)

// MRO kind names accepted in manifests and by the CLI
const (
	MRODFS = "dfs"
	MROC3  = "c3"
)
