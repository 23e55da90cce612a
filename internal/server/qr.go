package server

import (
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/skip2/go-qrcode"
)

// PrintQR writes url as a terminal QR code followed by the URL itself.
func PrintQR(w io.Writer, url string) error {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n  %s\n", q.ToSmallString(false), url)
	return err
}

// PublicURL turns a listen address into a URL other devices on the network
// can open. An empty or wildcard host is replaced by this machine's first
// non-loopback IPv4 address.
func PublicURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = localIP()
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "localhost"
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil && !strings.HasPrefix(ip4.String(), "169.254.") {
			return ip4.String()
		}
	}
	return "localhost"
}
