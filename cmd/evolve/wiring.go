package main

import (
	"fmt"
	"io"

	"github.com/danielpatrickdp/triplet-evolve/internal/agent"
	"github.com/danielpatrickdp/triplet-evolve/internal/codec"
	"github.com/danielpatrickdp/triplet-evolve/internal/config"
	"github.com/danielpatrickdp/triplet-evolve/internal/datasource"
	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/llmcheck"
	"github.com/danielpatrickdp/triplet-evolve/internal/refine"
	"github.com/danielpatrickdp/triplet-evolve/internal/rules"
	"github.com/danielpatrickdp/triplet-evolve/internal/store"
)

// #region processor
// buildProcessor assembles the refinement controller for the configured
// backend. The returned closer releases the gRPC connection, if any.
func buildProcessor(c config.Config) (*refine.Controller, io.Closer, error) {
	var (
		ex     agent.Extractor
		val    agent.Validator
		closer io.Closer = nopCloser{}
	)
	switch c.Agent.Backend {
	case "grpc":
		var opts []codec.Option
		if c.Agent.RatePerSecond > 0 {
			opts = append(opts, codec.WithRateLimit(c.Agent.RatePerSecond, c.Agent.Burst))
		}
		client, err := codec.NewAgentClient(c.Agent.Addr, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("connect agent service at %s: %w", c.Agent.Addr, err)
		}
		ex, val, closer = client, client, client
	default:
		var extra []agent.Checker
		if c.DeepCheck.Enabled {
			extra = append(extra, llmcheck.NewOpenAI(c.DeepCheck.APIKey, c.DeepCheck.BaseURL, c.DeepCheckSettings()))
		}
		ex = rules.NewExtractor()
		val = rules.NewValidator(extra...)
	}
	return refine.NewController(ex, val, c.Evolution.Refine()), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
// #endregion processor

// #region sources
// buildSource combines the configured data sources. Nil means none.
func buildSource(c config.Config) (evolution.DataSource, error) {
	var sources []datasource.Source
	if c.Data.Seed {
		seed, err := datasource.NewSeed(c.Data.PerSource)
		if err != nil {
			return nil, err
		}
		sources = append(sources, seed)
	}
	for _, path := range c.Data.Files {
		sources = append(sources, datasource.NewFile(path))
	}
	if c.Data.HTTPURL != "" {
		hc := datasource.DefaultHTTPConfig()
		hc.URL = c.Data.HTTPURL
		sources = append(sources, datasource.NewHTTP(hc))
	}
	if len(sources) == 0 {
		return nil, nil
	}
	return datasource.NewMulti(sources...), nil
}
// #endregion sources

// openStore opens the configured database. An empty path returns nil.
func openStore(c config.Config) (*store.Store, error) {
	if c.Storage.DBPath == "" {
		return nil, nil
	}
	st, err := store.NewStore(c.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", c.Storage.DBPath, err)
	}
	return st, nil
}
