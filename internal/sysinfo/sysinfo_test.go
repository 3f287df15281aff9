package sysinfo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazem-soussi-HA/hazoom/internal/cache"
)

func TestParseNvidiaSMI(t *testing.T) {
	out := "NVIDIA GeForce RTX 4090, 24564 MiB, 550.54.14, 41\nTesla T4, 15360 MiB, , 38\n\n"
	devs := ParseNvidiaSMI(out)
	require.Len(t, devs, 2)

	assert.Equal(t, GPUDevice{
		Name: "NVIDIA GeForce RTX 4090", Memory: "24564 MiB", Driver: "550.54.14", Temp: "41",
		Vendor: "NVIDIA", CUDA: true,
	}, devs[0])
	assert.Equal(t, "Unknown", devs[1].Driver)

	assert.Empty(t, ParseNvidiaSMI("  \n"))
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name         string
		info         Info
		backend      string
		batch        int
		threads      int
		warnings     int
		memoryAdvice string
	}{
		{
			name:         "large cpu only",
			info:         Info{CPU: CPU{CoresLogical: 32}, Memory: Memory{TotalGB: 64}},
			backend:      "cpu",
			batch:        4,
			threads:      16,
			memoryAdvice: "Sufficient RAM for large models",
		},
		{
			name:         "mid cpu",
			info:         Info{CPU: CPU{CoresLogical: 8}, Memory: Memory{TotalGB: 12}},
			backend:      "cpu",
			batch:        4,
			threads:      6,
			memoryAdvice: "Monitor memory usage",
		},
		{
			name:         "quad core",
			info:         Info{CPU: CPU{CoresLogical: 4}, Memory: Memory{TotalGB: 16}},
			backend:      "cpu",
			batch:        2,
			threads:      3,
			memoryAdvice: "Sufficient RAM for large models",
		},
		{
			name:         "cuda",
			info:         Info{CPU: CPU{CoresLogical: 8}, GPU: GPU{CUDAAvailable: true, AccelerationAvailable: true}, Memory: Memory{TotalGB: 32}},
			backend:      "cuda",
			batch:        8,
			threads:      6,
			memoryAdvice: "Sufficient RAM for large models",
		},
		{
			name:         "other gpu",
			info:         Info{CPU: CPU{CoresLogical: 4}, GPU: GPU{AccelerationAvailable: true}, Memory: Memory{TotalGB: 32}},
			backend:      "gpu",
			batch:        4,
			threads:      3,
			memoryAdvice: "Sufficient RAM for large models",
		},
		{
			name:         "small box",
			info:         Info{CPU: CPU{CoresLogical: 2}, GPU: GPU{CUDAAvailable: true}, Memory: Memory{TotalGB: 4}},
			backend:      "cuda",
			batch:        1,
			threads:      1,
			warnings:     2,
			memoryAdvice: "Use quantized models",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Recommend(&tt.info)
			assert.Equal(t, tt.backend, rec.InferenceBackend)
			assert.Equal(t, tt.batch, rec.BatchSize)
			assert.Equal(t, tt.threads, rec.ThreadCount)
			assert.Len(t, rec.Warnings, tt.warnings)
			assert.Contains(t, rec.MemoryOptimization, tt.memoryAdvice)
		})
	}
}

func TestRecommendFramework(t *testing.T) {
	rec := Recommend(&Info{Acceleration: Acceleration{RecommendedBackend: "CUDA"}, Memory: Memory{TotalGB: 16}})
	assert.Equal(t, "CUDA", rec.RecommendedFramework)
}

func fakeCollector(tools map[string]string, goos, goarch string) *Collector {
	c := NewCollector(0)
	c.goos, c.goarch = goos, goarch
	c.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		out, ok := tools[name]
		if !ok {
			return nil, errors.New("executable file not found")
		}
		return []byte(out), nil
	}
	c.lookPath = func(name string) (string, error) {
		if _, ok := tools[name]; ok {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	return c
}

func TestGPUAndAccelerationNvidia(t *testing.T) {
	c := fakeCollector(map[string]string{
		"nvidia-smi": "NVIDIA A100, 40960 MiB, 535.1, 30",
		"ollama":     "ollama version is 0.5.7",
	}, "linux", "amd64")
	ctx := context.Background()

	g := c.gpu(ctx)
	assert.True(t, g.CUDAAvailable)
	assert.True(t, g.AccelerationAvailable)
	assert.Equal(t, []string{"NVIDIA A100"}, g.Names())

	acc := c.acceleration(ctx, g)
	require.Len(t, acc.Frameworks, 2)
	assert.Equal(t, "CUDA", acc.Frameworks[0].Name)
	assert.Equal(t, "driver 535.1", acc.Frameworks[0].Version)
	assert.Equal(t, "Ollama", acc.Frameworks[1].Name)
	assert.Equal(t, "0.5.7", acc.Frameworks[1].Version)
	assert.Equal(t, "CUDA", acc.RecommendedBackend)
}

func TestGPUAndAccelerationNone(t *testing.T) {
	c := fakeCollector(map[string]string{}, "linux", "amd64")
	ctx := context.Background()

	g := c.gpu(ctx)
	assert.False(t, g.AccelerationAvailable)
	assert.Empty(t, g.GPUs)

	acc := c.acceleration(ctx, g)
	assert.Empty(t, acc.Frameworks)
	assert.Equal(t, CPUBackend, acc.RecommendedBackend)
}

func TestGPUMetalAndROCm(t *testing.T) {
	ctx := context.Background()

	metal := fakeCollector(map[string]string{}, "darwin", "arm64").gpu(ctx)
	assert.True(t, metal.MetalAvailable)
	assert.Equal(t, "Apple", metal.GPUs[0].Vendor)

	rocm := fakeCollector(map[string]string{"rocm-smi": ""}, "linux", "amd64")
	g := rocm.gpu(ctx)
	assert.True(t, g.ROCmAvailable)
	assert.Equal(t, "ROCm", rocm.acceleration(ctx, g).RecommendedBackend)
}

func TestCollectHost(t *testing.T) {
	c := fakeCollector(map[string]string{}, "linux", "amd64")
	info, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Positive(t, info.CPU.CoresLogical)
	assert.NotEmpty(t, info.Platform.GoVersion)
	assert.NotNil(t, info.CPU.PerCore)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, round2(1.2345))
	assert.Equal(t, 2.0, toGB(2<<30))
}

func TestScraperCaches(t *testing.T) {
	s := NewScraper(cache.NewMemoryCache("t"), time.Minute)
	calls := 0
	s.collect = func(context.Context) (*Info, error) {
		calls++
		return &Info{CPU: CPU{CoresLogical: 8}, Memory: Memory{TotalGB: 32}}, nil
	}
	ctx := context.Background()

	first, err := s.Snapshot(ctx)
	require.NoError(t, err)
	second, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, first.CPU.CoresLogical, second.CPU.CoresLogical)

	info, rec, err := s.Recommendations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, info.CPU.CoresLogical)
	assert.Equal(t, 6, rec.ThreadCount)
}

func TestScraperCollectError(t *testing.T) {
	s := NewScraper(nil, 0)
	s.collect = func(context.Context) (*Info, error) { return nil, context.Canceled }

	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}
