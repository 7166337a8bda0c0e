package factory

import (
	"context"
	"log"

	"cloudarb/config"
	"cloudarb/providers"
	"cloudarb/providers/aws"
	"cloudarb/providers/azure"
	"cloudarb/providers/gcp"
	"cloudarb/providers/lambdalabs"
	"cloudarb/providers/runpod"
)

// Build constructs the enabled adapters from configuration, applying any
// per-adapter policy overrides. An adapter that fails to construct is
// skipped with a log line rather than failing startup.
func Build(ctx context.Context, cfg *config.Config) []providers.Adapter {
	var adapters []providers.Adapter

	add := func(adapter providers.Adapter, ac config.AdapterConfig) {
		adapters = append(adapters, providers.WithPolicy(adapter, ac.RateLimit, ac.MinPollInterval.Std()))
	}

	if ac := cfg.Adapters.AWS; ac.Enabled {
		client, err := aws.NewClient(ctx, ac.Regions)
		if err != nil {
			log.Printf("factory: aws adapter disabled: %v", err)
		} else {
			add(client, ac)
		}
	}
	if ac := cfg.Adapters.GCP; ac.Enabled {
		client, err := gcp.NewClient(ctx, cfg.Adapters.GCPProject, ac.Regions)
		if err != nil {
			log.Printf("factory: gcp adapter disabled: %v", err)
		} else {
			add(client, ac)
		}
	}
	if ac := cfg.Adapters.Azure; ac.Enabled {
		client, err := azure.NewClient(ctx, ac.Regions)
		if err != nil {
			log.Printf("factory: azure adapter disabled: %v", err)
		} else {
			add(client, ac)
		}
	}
	if ac := cfg.Adapters.LambdaLabs; ac.Enabled {
		add(lambdalabs.NewClient(ac.APIKey), ac)
	}
	if ac := cfg.Adapters.RunPod; ac.Enabled {
		add(runpod.NewClient(ac.APIKey), ac)
	}

	return adapters
}

// Filter derives the fetch filter from configuration.
func Filter(cfg *config.Config) providers.Filter {
	return providers.Filter{
		GPUKinds: cfg.Adapters.GPUKinds,
		Regions:  cfg.Adapters.Regions,
	}
}
