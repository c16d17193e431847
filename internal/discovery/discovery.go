// Package discovery advertises the satellite's control server on the local
// network over mDNS so other devices can find it without configuration.
package discovery

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	service = "_voicesat._tcp"
	domain  = "local."
)

// Advertise registers the satellite instance under its hostname and returns a
// shutdown func. Advertisement failure is logged, not fatal: the satellite
// works without discovery.
func Advertise(instanceName string, port int, wakeKeywords []string) func() {
	if instanceName == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "voicesat"
		}
		instanceName = strings.TrimSuffix(host, ".local")
	}

	txt := []string{
		"role=satellite",
		fmt.Sprintf("wake=%s", strings.Join(wakeKeywords, ",")),
	}

	server, err := zeroconf.Register(instanceName, service, domain, port, txt, nil)
	if err != nil {
		log.Printf("discovery: mdns register failed: %v", err)
		return func() {}
	}
	log.Printf("discovery: advertised %s on %s (%s) port=%d", instanceName, service, domain, port)
	return func() {
		server.Shutdown()
	}
}
