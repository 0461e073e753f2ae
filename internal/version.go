package internal

import "fmt"

var (
	// These variables are here only to show current version. They are set in makefile during build process
	SDKVersion         = "devel"
	GitRevision        = "devel"
	SDKVersionRevision = fmt.Sprintf("%s-%s", SDKVersion, GitRevision)
)

// UserAgent is sent with every HTTP delivery.
func UserAgent() string {
	return "tonkeeper-analytics-go/" + SDKVersionRevision
}
