package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Bazza1982/lily-remote/internal/pairing"
)

// interactivePairingApproval is the out-of-band approval hook used outside
// LAN mode. The spec treats the tray/GUI indicator as out of scope, so
// approval happens on the controlling terminal instead: a non-interactive
// process (no TTY) rejects by default rather than hanging the request.
func interactivePairingApproval(p pairing.PendingPairing) bool {
	if !isInteractive() {
		log.Warn("pairing request received with no interactive terminal attached, rejecting",
			"clientId", p.ClientID, "clientName", p.ClientName)
		return false
	}

	fmt.Fprintf(os.Stderr, "\nPairing request from %q (client_id=%s)\n", p.ClientName, p.ClientID)
	fmt.Fprint(os.Stderr, "Approve? [y/N] ")

	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

func isInteractive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
