package scheduler

import (
	"context"
	"fmt"
	"time"

	"modelgate/internal/model"
	"modelgate/internal/provider"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// RecoveryProber re-checks quarantined providers whose cooldown elapsed.
type RecoveryProber interface {
	ProbeDue(ctx context.Context, reg *provider.Registry, timeout time.Duration) []model.ProviderID
}

type GlobalAlerter interface {
	EvaluateGlobal(ctx context.Context) ([]*model.CostAlert, error)
}

type Sweeper interface {
	Sweep() int
}

// Config 任务调度表达式；为空表示不注册该任务
type Config struct {
	ProbeSpec      string
	AlertSweepSpec string
	CacheSweepSpec string
	ProbeTimeout   time.Duration
	JobTimeout     time.Duration
}

// Scheduler 后台定时任务：提供商恢复探测、全局告警巡检、缓存过期清扫
type Scheduler struct {
	cron     *cron.Cron
	prober   RecoveryProber
	adapters *provider.Registry
	alerter  GlobalAlerter
	sweeper  Sweeper
	cfg      Config
}

func New(cfg Config, prober RecoveryProber, adapters *provider.Registry, alerter GlobalAlerter, sweeper Sweeper) (*Scheduler, error) {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger))),
		prober:   prober,
		adapters: adapters,
		alerter:  alerter,
		sweeper:  sweeper,
		cfg:      cfg,
	}

	jobs := []struct {
		name string
		spec string
		run  func()
		ok   bool
	}{
		{"provider probe", cfg.ProbeSpec, s.RunProbes, prober != nil && adapters != nil},
		{"alert sweep", cfg.AlertSweepSpec, s.RunAlertSweep, alerter != nil},
		{"cache sweep", cfg.CacheSweepSpec, s.RunCacheSweep, sweeper != nil},
	}
	for _, j := range jobs {
		if j.spec == "" || !j.ok {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, j.run); err != nil {
			return nil, fmt.Errorf("scheduler: %s schedule %q: %w", j.name, j.spec, err)
		}
		log.Infof("scheduler: %s scheduled (%s)", j.name, j.spec)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// RunProbes 探测冷却期已过的不健康提供商，成功则恢复
func (s *Scheduler) RunProbes() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	if ids := s.prober.ProbeDue(ctx, s.adapters, s.cfg.ProbeTimeout); len(ids) > 0 {
		log.Infof("scheduler: reinstated providers %v", ids)
	}
}

// RunAlertSweep evaluates the global spend rules even without traffic.
func (s *Scheduler) RunAlertSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()
	alerts, err := s.alerter.EvaluateGlobal(ctx)
	if err != nil {
		log.Warnf("scheduler: global alert sweep failed: %v", err)
		return
	}
	if len(alerts) > 0 {
		log.Debugf("scheduler: global alert sweep raised %d alerts", len(alerts))
	}
}

func (s *Scheduler) RunCacheSweep() {
	if n := s.sweeper.Sweep(); n > 0 {
		log.Debugf("scheduler: swept %d expired cache entries", n)
	}
}
