// Package proctitle labels the running process with its role.
package proctitle

// Role labels.
const (
	Master = "deepleela-server-master"
	Worker = "deepleela-server-worker"
)

// maxThreadName is the kernel's limit for a thread name, excluding the NUL.
const maxThreadName = 15

// threadNames are the short forms of the role labels. Both labels share
// their first 15 bytes, so plain truncation would make them identical.
var threadNames = map[string]string{
	Master: "deepleela-mastr",
	Worker: "deepleela-workr",
}

// ThreadName returns the name Set applies for label: the role's short form,
// or label cut to 15 bytes.
func ThreadName(label string) string {
	if name, ok := threadNames[label]; ok {
		return name
	}
	return Truncate(label)
}

// Truncate shortens label to what the kernel keeps.
func Truncate(label string) string {
	if len(label) > maxThreadName {
		return label[:maxThreadName]
	}
	return label
}
