// ABOUTME: Version and product identification
// ABOUTME: Reported in logs, the status panel and the development server
package version

const (
	// Version is the release version of overlay-feed
	Version = "0.4.1"

	// Product is the product name shown to operators
	Product = "overlay-feed"

	// Manufacturer identifies the service this client talks to
	Manufacturer = "quidditch.live"
)
