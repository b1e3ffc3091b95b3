//go:build windows

package main

import (
	"fmt"

	"golang.org/x/sys/windows/svc"
)

// isWindowsService reports whether the process was started by the Windows
// Service Control Manager. Must be called early — before any console I/O.
func isWindowsService() bool {
	ok, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return ok
}

// lilyService implements svc.Handler for the Windows SCM.
type lilyService struct {
	startFn func() (*agentComponents, error)
}

// runAsService runs the agent under the Windows Service Control Manager.
// startFn is called once the SCM has accepted the service start; it must
// return the running components so they can be shut down on SCM stop.
func runAsService(startFn func() (*agentComponents, error)) error {
	h := &lilyService{startFn: startFn}
	return svc.Run("LilyRemoteAgent", h)
}

// Execute is the SCM callback. It signals SERVICE_RUNNING, calls startFn,
// then blocks until the SCM sends Stop or Shutdown.
func (s *lilyService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown

	changes <- svc.Status{State: svc.StartPending}

	comps, err := s.startFn()
	if err != nil {
		log.Error("agent start failed", "error", err)
		changes <- svc.Status{State: svc.StopPending}
		return true, 1
	}

	changes <- svc.Status{State: svc.Running, Accepts: accepted}
	log.Info("agent running as Windows service")

	for cr := range r {
		switch cr.Cmd {
		case svc.Interrogate:
			changes <- cr.CurrentStatus
		case svc.Stop, svc.Shutdown:
			log.Info("SCM requested stop")
			changes <- svc.Status{State: svc.StopPending}
			shutdownAgent(comps)
			return false, 0
		default:
			log.Warn(fmt.Sprintf("unexpected SCM control request #%d", cr.Cmd))
		}
	}
	return false, 0
}
