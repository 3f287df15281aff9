package backend

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hazem-soussi-HA/hazoom/internal/cache"
	"github.com/hazem-soussi-HA/hazoom/internal/ollama"
	"github.com/hazem-soussi-HA/hazoom/pkg/api"
)

const bytesPerGB = 1024 * 1024 * 1024

// ErrPullRunning is returned when a pull of the same model is in progress.
var ErrPullRunning = errors.New("pull already running")

// SelectBestModel returns the first preferred model that is installed,
// else the largest installed model, else fallback.
func SelectBestModel(models []ollama.ModelInfo, preferred []string, fallback string) string {
	for _, want := range preferred {
		for _, m := range models {
			if m.Name == want {
				return want
			}
		}
	}

	best := ""
	var size int64 = -1
	for _, m := range models {
		if m.Size > size {
			best, size = m.Name, m.Size
		}
	}
	if best != "" {
		return best
	}
	return fallback
}

// Models is the model catalogue shared by every backend. Listings are cached
// for cache.ModelListTTL.
type Models struct {
	client    *ollama.Client
	cache     cache.Cache
	preferred []string
	fallback  string
	pulls     *PullTracker
}

// NewModels returns a catalogue over client. A nil cache gets an in-memory one.
func NewModels(client *ollama.Client, c cache.Cache, preferred []string, fallback string) *Models {
	if c == nil {
		c = cache.NewMemoryCache("")
	}
	return &Models{
		client:    client,
		cache:     c,
		preferred: preferred,
		fallback:  fallback,
		pulls:     NewPullTracker(),
	}
}

// Client returns the Ollama client.
func (m *Models) Client() *ollama.Client {
	return m.client
}

// Pulls returns the background pull tracker.
func (m *Models) Pulls() *PullTracker {
	return m.pulls
}

// Available reports whether the daemon answers.
func (m *Models) Available(ctx context.Context) bool {
	return m.client.CheckRunning(ctx) == nil
}

func (m *Models) listKey() string {
	return m.cache.Key("models", "list")
}

// List returns the installed models.
func (m *Models) List(ctx context.Context) ([]ollama.ModelInfo, error) {
	return cache.Fetch(ctx, m.cache, m.listKey(), cache.ModelListTTL, m.client.ListModels)
}

// Invalidate drops the cached listing.
func (m *Models) Invalidate(ctx context.Context) {
	if err := m.cache.Delete(ctx, m.listKey()); err != nil {
		log.Printf("models: invalidate cache: %v", err)
	}
}

// Best picks the default model. When the daemon is unreachable the fallback
// model is returned.
func (m *Models) Best(ctx context.Context) string {
	models, err := m.List(ctx)
	if err != nil {
		return m.fallback
	}
	return SelectBestModel(models, m.preferred, m.fallback)
}

// Has reports whether name is installed.
func (m *Models) Has(ctx context.Context, name string) (bool, error) {
	models, err := m.List(ctx)
	if err != nil {
		return false, err
	}
	for _, mi := range models {
		if mi.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Find returns the installed model called name.
func (m *Models) Find(ctx context.Context, name string) (*ollama.ModelInfo, bool) {
	models, err := m.List(ctx)
	if err != nil {
		return nil, false
	}
	for i := range models {
		if models[i].Name == name {
			return &models[i], true
		}
	}
	return nil, false
}

// Entries lists the installed models with current flagged.
func (m *Models) Entries(ctx context.Context, current string) ([]api.ModelEntry, error) {
	models, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]api.ModelEntry, 0, len(models))
	for _, mi := range models {
		out = append(out, api.ModelEntry{
			Name:              mi.Name,
			Size:              mi.Size,
			SizeGB:            sizeGB(mi.Size),
			ModifiedAt:        mi.ModifiedAt,
			Family:            mi.Details.Family,
			ParameterSize:     mi.Details.ParameterSize,
			QuantizationLevel: mi.Details.QuantizationLevel,
			IsCurrent:         mi.Name == current,
		})
	}
	return out, nil
}

// Show returns the daemon's details for name as a generic map.
func (m *Models) Show(ctx context.Context, name string) (map[string]any, error) {
	resp, err := m.client.Show(ctx, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"license":    resp.License,
		"modelfile":  resp.Modelfile,
		"parameters": resp.Parameters,
		"template":   resp.Template,
		"details":    resp.Details,
	}, nil
}

// Delete removes name from the daemon.
func (m *Models) Delete(ctx context.Context, name string) error {
	if err := m.client.Delete(ctx, name); err != nil {
		return err
	}
	m.Invalidate(ctx)
	return nil
}

// Pull starts a background pull of name. The pull outlives ctx.
func (m *Models) Pull(ctx context.Context, name string) error {
	bg := context.WithoutCancel(ctx)
	return m.pulls.Start(bg, name, m.client.Pull, func(err error) {
		if err != nil {
			log.Printf("Model pull failed for %s: %v", name, err)
			return
		}
		log.Printf("Model pull completed for %s", name)
		m.Invalidate(bg)
	})
}

// Status summarises the daemon for current.
func (m *Models) Status(ctx context.Context, current string) api.OllamaStatus {
	st := api.OllamaStatus{
		CurrentModel: current,
		BaseURL:      m.client.BaseURL(),
		Models:       []string{},
		Pulls:        m.pulls.List(),
	}
	models, err := m.List(ctx)
	if err != nil {
		return st
	}
	st.OllamaAvailable = true
	var total int64
	for _, mi := range models {
		st.Models = append(st.Models, mi.Name)
		total += mi.Size
	}
	st.TotalModels = len(models)
	st.TotalSizeGB = sizeGB(total)
	return st
}

func sizeGB(n int64) float64 {
	return math.Round(float64(n)/bytesPerGB*100) / 100
}

// PullFunc downloads a model, reporting progress. ollama.Client.Pull
// satisfies it.
type PullFunc func(ctx context.Context, name string, progress func(ollama.PullProgress)) error

// PullTracker records background pulls.
type PullTracker struct {
	now func() time.Time

	mu    sync.Mutex
	pulls map[string]*api.PullStatus
}

// NewPullTracker returns an empty tracker.
func NewPullTracker() *PullTracker {
	return &PullTracker{now: time.Now, pulls: make(map[string]*api.PullStatus)}
}

// Start runs pull in a goroutine and tracks it under name. done, if not
// nil, is called with the result once the pull ends.
func (t *PullTracker) Start(ctx context.Context, name string, pull PullFunc, done func(error)) error {
	t.mu.Lock()
	if p, ok := t.pulls[name]; ok && p.FinishedAt == nil {
		t.mu.Unlock()
		return fmt.Errorf("%s: %w", name, ErrPullRunning)
	}
	t.pulls[name] = &api.PullStatus{Model: name, Status: "starting", StartedAt: t.now()}
	t.mu.Unlock()

	go func() {
		err := pull(ctx, name, func(p ollama.PullProgress) {
			t.update(name, func(st *api.PullStatus) {
				st.Status = p.Status
				if p.Total > 0 {
					st.Total = p.Total
					st.Completed = p.Completed
					st.Percent = math.Round(p.Percent()*10) / 10
				}
			})
		})
		t.update(name, func(st *api.PullStatus) {
			finished := t.now()
			st.FinishedAt = &finished
			if err != nil {
				st.Status = "failed"
				st.Error = err.Error()
				return
			}
			st.Status = "success"
			if st.Total > 0 {
				st.Completed = st.Total
				st.Percent = 100
			}
		})
		if done != nil {
			done(err)
		}
	}()
	return nil
}

func (t *PullTracker) update(name string, fn func(*api.PullStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.pulls[name]; ok {
		fn(st)
	}
}

// Get returns the status of the pull of name.
func (t *PullTracker) Get(name string) (api.PullStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.pulls[name]
	if !ok {
		return api.PullStatus{}, false
	}
	return *st, true
}

// List returns every tracked pull, oldest first.
func (t *PullTracker) List() []api.PullStatus {
	t.mu.Lock()
	out := make([]api.PullStatus, 0, len(t.pulls))
	for _, st := range t.pulls {
		out = append(out, *st)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].Model < out[j].Model
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
