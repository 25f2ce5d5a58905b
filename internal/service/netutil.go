package service

import (
	"fmt"
	"net"
)

// LocalIP returns the address of the interface used for outbound traffic. The
// UDP dial sends no packets; it only asks the kernel to pick a route.
func LocalIP() string {
	conn, err := net.Dial("udp", "10.255.255.255:1")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok || addr.IP.IsUnspecified() {
		return "127.0.0.1"
	}
	return addr.IP.String()
}

// WebSocketURL is the address clients on the local network should dial.
func WebSocketURL(host string, port int) string {
	return fmt.Sprintf("ws://%s", net.JoinHostPort(host, fmt.Sprint(port)))
}
