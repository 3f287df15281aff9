package sysinfo

// Info is a snapshot of the host.
type Info struct {
	Platform     Platform     `json:"platform"`
	CPU          CPU          `json:"cpu"`
	GPU          GPU          `json:"gpu"`
	Memory       Memory       `json:"memory"`
	Disk         Disk         `json:"disk"`
	Acceleration Acceleration `json:"ai_acceleration"`
	BootTime     uint64       `json:"timestamp"`
}

type CPU struct {
	Processor     string    `json:"processor"`
	Architecture  string    `json:"architecture"`
	CoresPhysical int       `json:"cores_physical"`
	CoresLogical  int       `json:"cores_logical"`
	FreqCurrent   float64   `json:"cpu_freq_current"`
	FreqMax       float64   `json:"cpu_freq_max"`
	Percent       float64   `json:"cpu_percent"`
	PerCore       []float64 `json:"cpu_per_core"`
}

// GPUDevice is one graphics adapter. Memory, Driver and Temp are reported
// verbatim by the vendor tool.
type GPUDevice struct {
	Name   string `json:"name"`
	Memory string `json:"memory"`
	Driver string `json:"driver"`
	Temp   string `json:"temp"`
	Vendor string `json:"vendor"`
	CUDA   bool   `json:"cuda_enabled"`
}

type GPU struct {
	GPUs                  []GPUDevice `json:"gpus"`
	AccelerationAvailable bool        `json:"acceleration_available"`
	CUDAAvailable         bool        `json:"cuda_available"`
	ROCmAvailable         bool        `json:"rocm_available"`
	MetalAvailable        bool        `json:"metal_available"`
}

// Names returns the adapter names.
func (g GPU) Names() []string {
	names := make([]string, len(g.GPUs))
	for i, d := range g.GPUs {
		names[i] = d.Name
	}
	return names
}

// Memory sizes are in GB rounded to two decimals.
type Memory struct {
	TotalGB     float64 `json:"total_gb"`
	AvailableGB float64 `json:"available_gb"`
	UsedGB      float64 `json:"used_gb"`
	Percent     float64 `json:"percent"`
	SwapTotalGB float64 `json:"swap_total_gb"`
	SwapUsedGB  float64 `json:"swap_used_gb"`
	SwapPercent float64 `json:"swap_percent"`
}

type Disk struct {
	TotalGB float64 `json:"total_gb"`
	UsedGB  float64 `json:"used_gb"`
	FreeGB  float64 `json:"free_gb"`
	Percent float64 `json:"percent"`
}

type Platform struct {
	System    string `json:"system"`
	Release   string `json:"release"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Hostname  string `json:"hostname"`
}

// Framework is an inference runtime found on the host.
type Framework struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	GPU     bool   `json:"gpu_available"`
}

type Acceleration struct {
	Frameworks         []Framework `json:"available_frameworks"`
	RecommendedBackend string      `json:"recommended_backend"`
}

// Recommendation is inference tuning advice derived from an Info.
type Recommendation struct {
	InferenceBackend     string   `json:"inference_backend"`
	BatchSize            int      `json:"batch_size"`
	ThreadCount          int      `json:"thread_count"`
	MemoryOptimization   []string `json:"memory_optimization"`
	Warnings             []string `json:"warnings"`
	RecommendedFramework string   `json:"recommended_framework,omitempty"`
}
