package kern

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// ThreadSpec describes one thread of a scenario: when it arrives, how urgent
// it is, and the CPU bursts it will consume with I/O waits in between.
type ThreadSpec struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	Priority int    `yaml:"priority"`
	Arrival  int64  `yaml:"arrival"`
	// Bursts are the CPU stretches the thread executes, in ticks. Between
	// consecutive bursts the thread blocks for IOWait ticks.
	Bursts []int64 `yaml:"bursts"`
	IOWait int64   `yaml:"io_wait"`
	// InitialEstimate seeds the burst-time predictor; zero means the thread
	// starts with no history.
	InitialEstimate int64 `yaml:"initial_estimate"`
	// UserProgram threads carry user-mode registers and an address space
	// that are saved and restored around context switches.
	UserProgram bool `yaml:"user_program"`
}

// Scenario is a complete simulation input: the thread set plus the timer
// cadence and how long to run.
type Scenario struct {
	Name          string       `yaml:"name"`
	Horizon       int64        `yaml:"horizon"`
	TimerInterval int64        `yaml:"timer_interval"`
	Threads       []ThreadSpec `yaml:"threads"`
}

// LoadScenario reads a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario and fills defaulted fields in place.
func (sc *Scenario) Validate() error {
	if sc.Horizon <= 0 {
		sc.Horizon = 20000
	}
	if sc.TimerInterval <= 0 {
		sc.TimerInterval = 100
	}
	if len(sc.Threads) == 0 {
		return fmt.Errorf("scenario %q has no threads", sc.Name)
	}
	seen := make(map[int]bool, len(sc.Threads))
	for i := range sc.Threads {
		ts := &sc.Threads[i]
		if ts.ID == IdleThreadID {
			return fmt.Errorf("thread id %d is reserved for the idle thread", IdleThreadID)
		}
		if ts.ID < 0 {
			return fmt.Errorf("thread id %d is negative", ts.ID)
		}
		if seen[ts.ID] {
			return fmt.Errorf("duplicate thread id %d", ts.ID)
		}
		seen[ts.ID] = true
		if ts.Priority < MinPriority || ts.Priority > MaxPriority {
			return fmt.Errorf("thread %d: priority %d out of [%d, %d]", ts.ID, ts.Priority, MinPriority, MaxPriority)
		}
		if ts.Arrival < 0 {
			return fmt.Errorf("thread %d: negative arrival tick", ts.ID)
		}
		if len(ts.Bursts) == 0 {
			return fmt.Errorf("thread %d: no CPU bursts", ts.ID)
		}
		for _, b := range ts.Bursts {
			if b <= 0 {
				return fmt.Errorf("thread %d: non-positive burst %d", ts.ID, b)
			}
		}
		if ts.InitialEstimate < 0 {
			return fmt.Errorf("thread %d: negative initial estimate", ts.ID)
		}
		if ts.Name == "" {
			ts.Name = fmt.Sprintf("thread-%d", ts.ID)
		}
	}
	return nil
}

// DefaultScenario is a small mixed workload: one thread per level plus a
// long-running background thread that aging eventually rescues.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:          "default",
		Horizon:       20000,
		TimerInterval: 100,
		Threads: []ThreadSpec{
			{ID: 1, Name: "interactive", Priority: 120, Arrival: 0, Bursts: []int64{300, 300, 300}, IOWait: 400, InitialEstimate: 300},
			{ID: 2, Name: "worker", Priority: 80, Arrival: 50, Bursts: []int64{800, 800}, IOWait: 200},
			{ID: 3, Name: "batch", Priority: 30, Arrival: 100, Bursts: []int64{2500}},
			{ID: 4, Name: "starved", Priority: 55, Arrival: 150, Bursts: []int64{600}, UserProgram: true},
		},
	}
}

// RandomScenario generates n threads with clamped-Gaussian priorities and
// burst lengths, deterministically from the seed.
func RandomScenario(seed int64, n int, horizon int64) *Scenario {
	rng := rand.New(rand.NewSource(seed))
	sc := &Scenario{
		Name:          fmt.Sprintf("random-%d", seed),
		Horizon:       horizon,
		TimerInterval: 100,
	}
	for i := 1; i <= n; i++ {
		numBursts := 1 + rng.Intn(3)
		bursts := make([]int64, numBursts)
		for j := range bursts {
			bursts[j] = gaussInt64(rng, 400, 250, 50, 2000)
		}
		sc.Threads = append(sc.Threads, ThreadSpec{
			ID:          i,
			Name:        fmt.Sprintf("rand-%d", i),
			Priority:    int(gaussInt64(rng, 75, 35, MinPriority, MaxPriority)),
			Arrival:     rng.Int63n(max(horizon/4, 1)),
			Bursts:      bursts,
			IOWait:      gaussInt64(rng, 200, 100, 20, 600),
			UserProgram: rng.Intn(2) == 0,
		})
	}
	return sc
}

// gaussInt64 samples a clamped Gaussian.
func gaussInt64(rng *rand.Rand, mean, std, min, max int64) int64 {
	if min == max {
		return min
	}
	val := rng.NormFloat64()*float64(std) + float64(mean)
	val = math.Min(float64(max), val)
	val = math.Max(float64(min), val)
	return int64(math.Round(val))
}
