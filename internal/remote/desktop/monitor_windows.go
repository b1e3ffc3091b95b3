//go:build windows

package desktop

// ListMonitors reports the primary display's bounds via GetSystemMetrics.
// Per-monitor enumeration (EnumDisplayMonitors) isn't wired; this agent's
// Screen capability only ever captures monitor 0.
func ListMonitors() ([]MonitorInfo, error) {
	w, _, _ := procGetSystemMetrics.Call(smCxScreen)
	h, _, _ := procGetSystemMetrics.Call(smCyScreen)
	return []MonitorInfo{{
		Index:     0,
		Name:      "Default",
		Width:     int(w),
		Height:    int(h),
		IsPrimary: true,
	}}, nil
}
