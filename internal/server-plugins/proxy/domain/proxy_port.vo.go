package proxy

import (
	"fmt"
	"strconv"
	"strings"
)

// WebHostPort is the host port TLS enablement requires a mapping for.
const WebHostPort = "80"

// ProxyPort maps a host port to a container port for a scheme.
type ProxyPort struct {
	Scheme    string `json:"scheme"`
	Host      string `json:"host"`
	Container string `json:"container"`
}

func (p ProxyPort) String() string {
	return p.Scheme + ":" + p.Host + ":" + p.Container
}

// ParseProxyPort parses a scheme:host:container triple.
func ParseProxyPort(value string) (ProxyPort, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return ProxyPort{}, fmt.Errorf("invalid port mapping %q", value)
	}
	port := ProxyPort{Scheme: parts[0], Host: parts[1], Container: parts[2]}
	if port.Scheme == "" {
		return ProxyPort{}, fmt.Errorf("invalid port mapping %q: empty scheme", value)
	}
	if !validPort(port.Host) || !validPort(port.Container) {
		return ProxyPort{}, fmt.Errorf("invalid port mapping %q: ports must be between 1 and 65535", value)
	}
	return port, nil
}

// ParsePortMap parses the whitespace separated output of ports:report --ports-map.
func ParsePortMap(output string) ([]ProxyPort, error) {
	fields := strings.Fields(output)
	ports := make([]ProxyPort, 0, len(fields))
	for _, field := range fields {
		port, err := ParseProxyPort(field)
		if err != nil {
			return nil, err
		}
		ports = append(ports, port)
	}
	return ports, nil
}

// FindHost returns the first mapping for a host port.
func FindHost(ports []ProxyPort, host string) (ProxyPort, bool) {
	for _, p := range ports {
		if p.Host == host {
			return p, true
		}
	}
	return ProxyPort{}, false
}

func validPort(value string) bool {
	n, err := strconv.Atoi(value)
	return err == nil && n > 0 && n <= 65535
}
