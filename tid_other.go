//go:build !linux

package tasklet

// osThreadID has no portable equivalent outside Linux in golang.org/x/sys;
// on other platforms it reports false rather than fabricate an id. No code
// in this package calls it.
func osThreadID() (int64, bool) {
	return 0, false
}
