package driver

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/catalystcommunity/executor-driver/internal/logging"
	"github.com/catalystcommunity/executor-driver/internal/protocol"
)

// captureMachineSpecs fingerprints the host once at startup, extending
// the teacher's ResourceMonitor.collectMetrics sampling (cpu.Percent,
// mem.VirtualMemory) with host.Info() for the one-shot hardware
// snapshot the spec requires, rather than the teacher's periodic
// polling loop.
func captureMachineSpecs(ctx context.Context) protocol.MachineSpecs {
	specs := protocol.MachineSpecs{
		"num_cpu": runtime.NumCPU(),
		"goos":    runtime.GOOS,
		"goarch":  runtime.GOARCH,
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		specs["hostname"] = info.Hostname
		specs["platform"] = info.Platform
		specs["platform_version"] = info.PlatformVersion
		specs["kernel_version"] = info.KernelVersion
		specs["uptime_seconds"] = info.Uptime
	} else {
		logging.Log.WithError(err).Warn("machine specs: host.Info unavailable")
	}

	if cpuInfo, err := cpu.InfoWithContext(ctx); err == nil && len(cpuInfo) > 0 {
		specs["cpu_model"] = cpuInfo[0].ModelName
		specs["cpu_mhz"] = cpuInfo[0].Mhz
	} else if err != nil {
		logging.Log.WithError(err).Warn("machine specs: cpu.Info unavailable")
	}

	if vmem, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		specs["memory_total_bytes"] = vmem.Total
	} else {
		logging.Log.WithError(err).Warn("machine specs: mem.VirtualMemory unavailable")
	}

	return specs
}
