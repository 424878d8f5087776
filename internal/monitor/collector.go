package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/socialeye/internal/models"
	"github.com/socialeye/internal/telemetry"
)

const (
	maxConcurrentCollections = 10

	MetricContainersRunning = "containers.running"
)

// DockerAPI is the part of the Docker client the collector reads.
type DockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerStats(ctx context.Context, containerID string, stream bool) (types.ContainerStats, error)
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// SampleRecorder stores metric samples for the sampler to aggregate.
type SampleRecorder interface {
	RecordBatch(ctx context.Context, samples []models.MetricSample) error
}

// NewDockerClient connects using the DOCKER_* environment.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return cli, nil
}

// Collector turns running container stats into metric samples.
type Collector struct {
	docker   DockerAPI
	recorder SampleRecorder
	interval time.Duration
	log      logrus.FieldLogger
	metrics  *telemetry.Metrics
	sem      *semaphore.Weighted
	now      func() time.Time
}

func NewCollector(docker DockerAPI, recorder SampleRecorder, interval time.Duration, log logrus.FieldLogger, metrics *telemetry.Metrics) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if metrics == nil {
		metrics = telemetry.New(nil)
	}
	return &Collector{
		docker:   docker,
		recorder: recorder,
		interval: interval,
		log:      log,
		metrics:  metrics,
		sem:      semaphore.NewWeighted(maxConcurrentCollections),
		now:      time.Now,
	}
}

// Run collects immediately and then every interval until ctx is done.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.Collect(ctx); err != nil {
			c.log.WithError(err).Warn("container stats collection failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// Collect records one round of samples. Containers that fail are skipped and
// reported together in the returned error.
func (c *Collector) Collect(ctx context.Context) error {
	containers, err := c.docker.ContainerList(ctx, types.ContainerListOptions{})
	if err != nil {
		c.metrics.CollectionFailures.Inc()
		return fmt.Errorf("failed to list containers: %w", err)
	}

	now := c.now().UTC()
	samples := []models.MetricSample{{
		Metric:    MetricContainersRunning,
		Value:     float64(len(containers)),
		Timestamp: now,
	}}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	for _, ctr := range containers {
		ctr := ctr
		if err := c.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.sem.Release(1)

			got, err := c.containerSamples(ctx, ctr, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("container %s: %w", ctr.ID, err))
				return
			}
			samples = append(samples, got...)
		}()
	}
	wg.Wait()

	if err := c.recorder.RecordBatch(ctx, samples); err != nil {
		c.metrics.CollectionFailures.Inc()
		return fmt.Errorf("failed to record container samples: %w", err)
	}
	c.metrics.SamplesRecorded.Add(float64(len(samples)))

	if len(errs) > 0 {
		c.metrics.CollectionFailures.Add(float64(len(errs)))
		return errors.Join(errs...)
	}
	return nil
}

func (c *Collector) containerSamples(ctx context.Context, ctr types.Container, at time.Time) ([]models.MetricSample, error) {
	resp, err := c.docker.ContainerStats(ctx, ctr.ID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	defer resp.Body.Close()

	var stats types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats: %w", err)
	}

	info, err := c.docker.ContainerInspect(ctx, ctr.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}
	restarts := 0
	if info.ContainerJSONBase != nil {
		restarts = info.RestartCount
	}

	prefix := "container." + containerName(ctr) + "."
	return []models.MetricSample{
		{Metric: prefix + "cpu_percent", Value: calculateCPUPercentUnix(stats), Timestamp: at},
		{Metric: prefix + "memory_percent", Value: memoryPercent(stats), Timestamp: at},
		{Metric: prefix + "restarts", Value: float64(restarts), Timestamp: at},
	}, nil
}

func containerName(ctr types.Container) string {
	if len(ctr.Names) > 0 {
		return strings.TrimPrefix(ctr.Names[0], "/")
	}
	if len(ctr.ID) > 12 {
		return ctr.ID[:12]
	}
	return ctr.ID
}

func calculateCPUPercentUnix(stats types.StatsJSON) float64 {
	cpuDelta := float64(stats.CPUStats.CPUUsage.TotalUsage) - float64(stats.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(stats.CPUStats.SystemUsage) - float64(stats.PreCPUStats.SystemUsage)
	if systemDelta <= 0 || cpuDelta <= 0 {
		return 0
	}

	cpus := float64(stats.CPUStats.OnlineCPUs)
	if cpus == 0 {
		cpus = float64(len(stats.CPUStats.CPUUsage.PercpuUsage))
	}
	return cpuDelta / systemDelta * cpus * 100.0
}

func memoryPercent(stats types.StatsJSON) float64 {
	if stats.MemoryStats.Limit == 0 {
		return 0
	}
	return float64(stats.MemoryStats.Usage) / float64(stats.MemoryStats.Limit) * 100.0
}
