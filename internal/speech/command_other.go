//go:build !unix

package speech

import "os"

// Speech processes cannot be suspended here; pause lets the current
// utterance finish.
func suspend(*os.Process) error { return nil }
func cont(*os.Process) error    { return nil }
