// Package netutil holds the listener plumbing: local address discovery,
// port-availability probing with fallback ranges, and best-effort eviction
// of a process squatting on a preferred port.
package netutil

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LocalIP returns the outbound interface address, or 127.0.0.1 if it cannot
// be determined.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}

// IsPortAvailable reports whether host:port can currently be bound.
func IsPortAvailable(host string, port int) bool {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// FindAvailablePort scans [start, end] and returns the first bindable port.
func FindAvailablePort(host string, start, end int) (int, bool) {
	for port := start; port <= end; port++ {
		if IsPortAvailable(host, port) {
			return port, true
		}
	}
	return 0, false
}

// ResolvePort returns a bindable port: the preferred one if free, the
// preferred one again after evicting its occupant, otherwise the first free
// port in the fallback range.
func ResolvePort(host string, preferred, fallbackStart, fallbackEnd int) (int, error) {
	if IsPortAvailable(host, preferred) {
		return preferred, nil
	}
	if KillProcessOnPort(preferred) {
		// Give the evicted process a moment to release the socket.
		time.Sleep(time.Second)
		if IsPortAvailable(host, preferred) {
			return preferred, nil
		}
	}
	logrus.Warnf("port %d is in use, trying fallback ports %d-%d", preferred, fallbackStart, fallbackEnd)
	if port, ok := FindAvailablePort(host, fallbackStart, fallbackEnd); ok {
		return port, nil
	}
	return 0, fmt.Errorf("no available port in %d or %d-%d", preferred, fallbackStart, fallbackEnd)
}

// KillProcessOnPort terminates whatever process is listening on port.
// Returns true if a process was killed.
func KillProcessOnPort(port int) bool {
	if runtime.GOOS == "windows" {
		return killPortWindows(port)
	}
	return killPortUnix(port)
}

func killPortUnix(port int) bool {
	out, err := exec.Command("lsof", "-t", "-i", fmt.Sprintf(":%d", port)).Output()
	if err != nil || len(out) == 0 {
		return false
	}
	killed := false
	for _, pid := range strings.Fields(string(out)) {
		if err := exec.Command("kill", "-9", pid).Run(); err == nil {
			logrus.Infof("killed process %s using port %d", pid, port)
			killed = true
		}
	}
	return killed
}

func killPortWindows(port int) bool {
	out, err := exec.Command("netstat", "-ano").Output()
	if err != nil {
		return false
	}
	needle := fmt.Sprintf(":%d", port)
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, needle) || !strings.Contains(line, "LISTENING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		pid := fields[len(fields)-1]
		if err := exec.Command("taskkill", "/F", "/PID", pid).Run(); err == nil {
			logrus.Infof("killed process %s using port %d", pid, port)
			return true
		}
	}
	return false
}
