package main

import (
	"fmt"
	"os"

	"github.com/Bazza1982/lily-remote/pkg/agentclient"
)

var killSwitchToken string

func init() {
	killSwitchCmd.PersistentFlags().StringVar(&killSwitchToken, "token", "", "bearer token (omit under LAN mode)")
}

// killSwitchCall is a thin CLI client for the two kill-switch endpoints,
// talking to a locally running agent over its own self-signed TLS listener.
func killSwitchCall(action string) {
	client := agentclient.NewInsecureClient(killSwitchAddr, killSwitchToken)

	var (
		result *agentclient.KillSwitchResult
		err    error
	)
	switch action {
	case "activate":
		result, err = client.ActivateKillSwitch()
	case "deactivate":
		result, err = client.DeactivateKillSwitch()
	default:
		fmt.Fprintf(os.Stderr, "unknown kill switch action %q\n", action)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", action, err)
		os.Exit(1)
	}

	fmt.Printf("kill switch %s: %+v\n", action, result)
}
