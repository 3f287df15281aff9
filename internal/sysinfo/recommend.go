package sysinfo

// CPUBackend is recommended when no acceleration framework is found.
const CPUBackend = "CPU (No GPU acceleration detected)"

// Recommend derives thread count, batch size and memory advice from info.
func Recommend(info *Info) Recommendation {
	rec := Recommendation{
		InferenceBackend:   "cpu",
		BatchSize:          1,
		ThreadCount:        1,
		MemoryOptimization: []string{},
		Warnings:           []string{},
	}

	cores := info.CPU.CoresLogical
	switch {
	case cores >= 8:
		rec.ThreadCount = min(cores-2, 16)
		rec.BatchSize = 4
	case cores >= 4:
		rec.ThreadCount = cores - 1
		rec.BatchSize = 2
	default:
		rec.Warnings = append(rec.Warnings, "Low CPU core count - expect slower performance")
	}

	switch {
	case info.GPU.CUDAAvailable:
		rec.InferenceBackend = "cuda"
		rec.BatchSize = 8
		rec.MemoryOptimization = append(rec.MemoryOptimization, "Use GPU for inference")
	case info.GPU.AccelerationAvailable:
		rec.InferenceBackend = "gpu"
		rec.BatchSize = 4
		rec.MemoryOptimization = append(rec.MemoryOptimization, "Use GPU acceleration")
	}

	switch mem := info.Memory.TotalGB; {
	case mem < 8:
		rec.Warnings = append(rec.Warnings, "Low RAM - consider smaller models")
		rec.MemoryOptimization = append(rec.MemoryOptimization, "Use quantized models")
		rec.BatchSize = 1
	case mem < 16:
		rec.MemoryOptimization = append(rec.MemoryOptimization, "Monitor memory usage")
	default:
		rec.MemoryOptimization = append(rec.MemoryOptimization, "Sufficient RAM for large models")
	}

	rec.RecommendedFramework = info.Acceleration.RecommendedBackend
	return rec
}
