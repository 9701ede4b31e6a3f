package main

import (
	"fmt"
	"time"

	"github.com/curbz/failure-niner/internal/failgen"
	"github.com/curbz/failure-niner/internal/failures"
	"github.com/curbz/failure-niner/internal/store"
	"github.com/curbz/failure-niner/internal/transport"
	"github.com/curbz/failure-niner/pkg/util"
)

type config struct {
	Failures struct {
		CatalogueFile     string        `yaml:"catalogue_file"`
		MaxFailuresAtOnce int           `yaml:"max_failures_at_once"`
		FineTick          time.Duration `yaml:"fine_tick"`
		CoarseTick        time.Duration `yaml:"coarse_tick"`
		ReconcileInterval time.Duration `yaml:"reconcile_interval"`
		Seed              int64         `yaml:"seed"`
	} `yaml:"failures"`
	Log struct {
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
}

func loadConfig(cfgPath string) (*config, error) {
	var def config
	def.Failures.CatalogueFile = "failures.yaml"
	def.Failures.MaxFailuresAtOnce = 2
	def.Failures.FineTick = 500 * time.Millisecond
	def.Failures.CoarseTick = 5 * time.Second
	def.Failures.ReconcileInterval = 30 * time.Second

	cfg, err := util.LoadConfigOrDefault(cfgPath, def)
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}
	f := &cfg.Failures
	if f.MaxFailuresAtOnce <= 0 {
		return nil, fmt.Errorf("max_failures_at_once must be positive, got %d", f.MaxFailuresAtOnce)
	}
	if f.FineTick <= 0 || f.CoarseTick <= 0 || f.ReconcileInterval <= 0 {
		return nil, fmt.Errorf("fine_tick, coarse_tick and reconcile_interval must be positive")
	}
	return cfg, nil
}

// app is the catalogue, store and registries shared by every command.
type app struct {
	cfg        *config
	catalogue  []failures.Failure
	store      *store.SQLite
	mirror     *transport.Mirror
	assoc      *failgen.Associations
	registries *failgen.Registries
}

func openApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	catalogue, err := failures.LoadCatalogue(cfg.Failures.CatalogueFile)
	if err != nil {
		return nil, err
	}
	st, err := store.New(cfgPath)
	if err != nil {
		return nil, err
	}
	mirror, err := transport.New(cfgPath)
	if err != nil {
		st.Close()
		return nil, err
	}

	assoc := failgen.NewAssociations(st, catalogue)
	assoc.Load()
	regs := failgen.NewRegistries(st, mirror, assoc)
	regs.Load()

	return &app{
		cfg:        cfg,
		catalogue:  catalogue,
		store:      st,
		mirror:     mirror,
		assoc:      assoc,
		registries: regs,
	}, nil
}

func (a *app) Close() {
	a.mirror.Close()
	a.store.Close()
}
