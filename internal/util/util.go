package util

import (
	"net"
	"os/exec"
	"runtime"
	"strconv"
)

// LocalIP returns the first non-loopback IPv4 address of this host, or an
// empty string when there is none.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

// BrowseURL is the address to print or open for a server bound to host.
// Wildcard hosts are replaced with localIP when set, else localhost.
func BrowseURL(host string, port int, localIP string) string {
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
		if localIP != "" {
			host = localIP
		}
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/"
}

// OpenBrowser launches the platform's URL opener without waiting for it.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}
