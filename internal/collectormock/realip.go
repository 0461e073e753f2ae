package collectormock

import (
	"net/http"
	"strings"

	"github.com/realclientip/realclientip-go"
)

const unknownClient = "unknown"

// RealIPExtractor attributes a batch to the SDK host that sent it, looking
// through X-Forwarded-For entries appended by trusted proxies.
type RealIPExtractor struct {
	strategy realclientip.RightmostTrustedRangeStrategy
}

func NewRealIPExtractor(trustedRanges []string) (*RealIPExtractor, error) {
	ipNets, err := realclientip.AddressesAndRangesToIPNets(trustedRanges...)
	if err != nil {
		return nil, err
	}

	strategy, err := realclientip.NewRightmostTrustedRangeStrategy("X-Forwarded-For", ipNets)
	if err != nil {
		return nil, err
	}

	return &RealIPExtractor{strategy: strategy}, nil
}

var remoteAddrStrategy = realclientip.RemoteAddrStrategy{}

// Extract returns the client address, or "unknown" when none can be found.
func (e *RealIPExtractor) Extract(request *http.Request) string {
	remoteAddr := remoteAddrStrategy.ClientIP(nil, request.RemoteAddr)
	if remoteAddr == "" {
		return unknownClient
	}

	forwarded := request.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return remoteAddr
	}

	// the direct peer counts as the last hop of the chain
	headers := http.Header{}
	headers.Set("X-Forwarded-For", strings.Join([]string{forwarded, remoteAddr}, ", "))

	if client := e.strategy.ClientIP(headers, ""); client != "" {
		return client
	}
	return remoteAddr
}
