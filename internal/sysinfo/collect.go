package sysinfo

import (
	"bytes"
	"context"
	"log"
	"math"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	commandTimeout = 5 * time.Second
	gb             = 1 << 30
)

// CommandRunner runs an external tool and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Collector gathers host information with gopsutil and vendor tools.
type Collector struct {
	run            CommandRunner
	lookPath       func(string) (string, error)
	goos           string
	goarch         string
	sampleInterval time.Duration
	diskPath       string
}

// NewCollector returns a collector that samples CPU load over interval.
func NewCollector(interval time.Duration) *Collector {
	return &Collector{
		run:            runCommand,
		lookPath:       exec.LookPath,
		goos:           runtime.GOOS,
		goarch:         runtime.GOARCH,
		sampleInterval: interval,
		diskPath:       "/",
	}
}

// Collect builds a fresh snapshot. Sections that cannot be read are left
// zero and logged; Collect fails only when ctx is done.
func (c *Collector) Collect(ctx context.Context) (*Info, error) {
	info := &Info{
		Platform: c.platform(ctx),
		CPU:      c.cpu(ctx),
		GPU:      c.gpu(ctx),
		Memory:   c.memory(ctx),
		Disk:     c.disk(ctx),
	}
	info.Acceleration = c.acceleration(ctx, info.GPU)
	if bt, err := host.BootTimeWithContext(ctx); err == nil {
		info.BootTime = bt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return info, nil
}

func (c *Collector) platform(ctx context.Context) Platform {
	p := Platform{System: c.goos, GoVersion: runtime.Version()}
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		log.Printf("sysinfo: host info: %v", err)
		return p
	}
	p.Release = hi.KernelVersion
	p.Version = strings.TrimSpace(hi.Platform + " " + hi.PlatformVersion)
	p.Hostname = hi.Hostname
	return p
}

func (c *Collector) cpu(ctx context.Context) CPU {
	out := CPU{Architecture: c.goarch, PerCore: []float64{}}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		out.Processor = infos[0].ModelName
		out.FreqCurrent = infos[0].Mhz
		for _, i := range infos {
			out.FreqMax = math.Max(out.FreqMax, i.Mhz)
		}
	} else if err != nil {
		log.Printf("sysinfo: cpu info: %v", err)
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		out.CoresPhysical = n
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CoresLogical = n
	} else {
		out.CoresLogical = runtime.NumCPU()
	}

	perCore, err := cpu.PercentWithContext(ctx, c.sampleInterval, true)
	if err != nil {
		log.Printf("sysinfo: cpu percent: %v", err)
		return out
	}
	var total float64
	for _, p := range perCore {
		out.PerCore = append(out.PerCore, round2(p))
		total += p
	}
	if len(perCore) > 0 {
		out.Percent = round2(total / float64(len(perCore)))
	}
	return out
}

func (c *Collector) gpu(ctx context.Context) GPU {
	g := GPU{GPUs: []GPUDevice{}}

	if out, err := c.run(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,driver_version,temperature.gpu", "--format=csv,noheader"); err == nil {
		if devs := ParseNvidiaSMI(string(out)); len(devs) > 0 {
			g.GPUs = append(g.GPUs, devs...)
			g.CUDAAvailable = true
			g.AccelerationAvailable = true
		}
	}

	if _, err := c.lookPath("rocm-smi"); err == nil {
		g.ROCmAvailable = true
		g.AccelerationAvailable = true
		if len(g.GPUs) == 0 {
			g.GPUs = append(g.GPUs, GPUDevice{Name: "AMD GPU", Memory: "Unknown", Driver: "Unknown", Temp: "Unknown", Vendor: "AMD"})
		}
	}

	if c.goos == "darwin" && c.goarch == "arm64" {
		g.MetalAvailable = true
		g.AccelerationAvailable = true
		if len(g.GPUs) == 0 {
			g.GPUs = append(g.GPUs, GPUDevice{Name: "Apple Silicon GPU", Memory: "Unified", Driver: "Metal", Temp: "Unknown", Vendor: "Apple"})
		}
	}
	return g
}

// ParseNvidiaSMI parses `nvidia-smi --query-gpu=name,memory.total,
// driver_version,temperature.gpu --format=csv,noheader` output.
func ParseNvidiaSMI(out string) []GPUDevice {
	var devs []GPUDevice
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		field := func(i int) string {
			if i < len(parts) {
				if v := strings.TrimSpace(parts[i]); v != "" {
					return v
				}
			}
			return "Unknown"
		}
		devs = append(devs, GPUDevice{
			Name:   field(0),
			Memory: field(1),
			Driver: field(2),
			Temp:   field(3),
			Vendor: "NVIDIA",
			CUDA:   true,
		})
	}
	return devs
}

func (c *Collector) memory(ctx context.Context) Memory {
	var m Memory
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		m.TotalGB = toGB(vm.Total)
		m.AvailableGB = toGB(vm.Available)
		m.UsedGB = toGB(vm.Used)
		m.Percent = round2(vm.UsedPercent)
	} else {
		log.Printf("sysinfo: virtual memory: %v", err)
	}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil {
		m.SwapTotalGB = toGB(sw.Total)
		m.SwapUsedGB = toGB(sw.Used)
		m.SwapPercent = round2(sw.UsedPercent)
	}
	return m
}

func (c *Collector) disk(ctx context.Context) Disk {
	u, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		log.Printf("sysinfo: disk usage: %v", err)
		return Disk{}
	}
	return Disk{
		TotalGB: toGB(u.Total),
		UsedGB:  toGB(u.Used),
		FreeGB:  toGB(u.Free),
		Percent: round2(u.UsedPercent),
	}
}

// acceleration lists the inference runtimes present. The first GPU capable
// one becomes the recommended backend.
func (c *Collector) acceleration(ctx context.Context, g GPU) Acceleration {
	acc := Acceleration{Frameworks: []Framework{}}

	if g.CUDAAvailable {
		fw := Framework{Name: "CUDA", GPU: true}
		if len(g.GPUs) > 0 && g.GPUs[0].Driver != "Unknown" {
			fw.Version = "driver " + g.GPUs[0].Driver
		}
		acc.Frameworks = append(acc.Frameworks, fw)
	}
	if g.ROCmAvailable {
		acc.Frameworks = append(acc.Frameworks, Framework{Name: "ROCm", GPU: true})
	}
	if g.MetalAvailable {
		acc.Frameworks = append(acc.Frameworks, Framework{Name: "Metal", GPU: true})
	}
	if _, err := c.lookPath("ollama"); err == nil {
		fw := Framework{Name: "Ollama", GPU: g.AccelerationAvailable}
		if out, err := c.run(ctx, "ollama", "--version"); err == nil {
			fw.Version = parseOllamaVersion(string(out))
		}
		acc.Frameworks = append(acc.Frameworks, fw)
	}

	for _, fw := range acc.Frameworks {
		if fw.GPU {
			acc.RecommendedBackend = fw.Name
			break
		}
	}
	if acc.RecommendedBackend == "" {
		acc.RecommendedBackend = CPUBackend
	}
	return acc
}

// parseOllamaVersion extracts "0.5.7" from "ollama version is 0.5.7".
func parseOllamaVersion(out string) string {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func toGB(b uint64) float64 {
	return round2(float64(b) / gb)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
