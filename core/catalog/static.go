package catalog

import "cloudarb/core/models"

// DefaultStatic returns the built-in catalog used when no database is
// configured. The instance shapes mirror the adapters' instance books so
// enrichment and perf lookups resolve without a persisted catalog.
func DefaultStatic() *Catalog {
	providerInfos := []models.ProviderInfo{
		{ID: "aws", Name: models.ProviderAWS, DisplayName: "Amazon Web Services", Enabled: true},
		{ID: "gcp", Name: models.ProviderGCP, DisplayName: "Google Cloud", Enabled: true},
		{ID: "azure", Name: models.ProviderAzure, DisplayName: "Microsoft Azure", Enabled: true},
		{ID: "lambdalabs", Name: models.ProviderLambdaLabs, DisplayName: "Lambda Labs", Enabled: true},
		{ID: "runpod", Name: models.ProviderRunPod, DisplayName: "RunPod", Enabled: true},
	}

	instanceTypes := []models.InstanceType{
		{Provider: models.ProviderAWS, Name: "p3.2xlarge", GPUKind: "V100", GPUCount: 1, VCPU: 8, RAMGB: 61},
		{Provider: models.ProviderAWS, Name: "p3.8xlarge", GPUKind: "V100", GPUCount: 4, VCPU: 32, RAMGB: 244},
		{Provider: models.ProviderAWS, Name: "p3.16xlarge", GPUKind: "V100", GPUCount: 8, VCPU: 64, RAMGB: 488},
		{Provider: models.ProviderAWS, Name: "p4d.24xlarge", GPUKind: "A100", GPUCount: 8, VCPU: 96, RAMGB: 1152},
		{Provider: models.ProviderAWS, Name: "p5.48xlarge", GPUKind: "H100", GPUCount: 8, VCPU: 192, RAMGB: 2048},
		{Provider: models.ProviderAWS, Name: "g4dn.xlarge", GPUKind: "T4", GPUCount: 1, VCPU: 4, RAMGB: 16},
		{Provider: models.ProviderAWS, Name: "g5.xlarge", GPUKind: "A10G", GPUCount: 1, VCPU: 4, RAMGB: 16},
		{Provider: models.ProviderGCP, Name: "a2-highgpu-1g", GPUKind: "A100", GPUCount: 1, VCPU: 12, RAMGB: 85},
		{Provider: models.ProviderGCP, Name: "a2-highgpu-2g", GPUKind: "A100", GPUCount: 2, VCPU: 24, RAMGB: 170},
		{Provider: models.ProviderGCP, Name: "a2-highgpu-4g", GPUKind: "A100", GPUCount: 4, VCPU: 48, RAMGB: 340},
		{Provider: models.ProviderGCP, Name: "a2-highgpu-8g", GPUKind: "A100", GPUCount: 8, VCPU: 96, RAMGB: 680},
		{Provider: models.ProviderGCP, Name: "a3-highgpu-8g", GPUKind: "H100", GPUCount: 8, VCPU: 208, RAMGB: 1872},
		{Provider: models.ProviderGCP, Name: "g2-standard-4", GPUKind: "L4", GPUCount: 1, VCPU: 4, RAMGB: 16},
		{Provider: models.ProviderAzure, Name: "Standard_NC6s_v3", GPUKind: "V100", GPUCount: 1, VCPU: 6, RAMGB: 112},
		{Provider: models.ProviderAzure, Name: "Standard_NC24s_v3", GPUKind: "V100", GPUCount: 4, VCPU: 24, RAMGB: 448},
		{Provider: models.ProviderAzure, Name: "Standard_ND96asr_v4", GPUKind: "A100", GPUCount: 8, VCPU: 96, RAMGB: 900},
		{Provider: models.ProviderAzure, Name: "Standard_NC24ads_A100_v4", GPUKind: "A100", GPUCount: 1, VCPU: 24, RAMGB: 220},
		{Provider: models.ProviderAzure, Name: "Standard_NC4as_T4_v3", GPUKind: "T4", GPUCount: 1, VCPU: 4, RAMGB: 28},
		{Provider: models.ProviderLambdaLabs, Name: "gpu_1x_a100", GPUKind: "A100", GPUCount: 1, VCPU: 30, RAMGB: 200},
		{Provider: models.ProviderLambdaLabs, Name: "gpu_8x_a100", GPUKind: "A100", GPUCount: 8, VCPU: 124, RAMGB: 1800},
		{Provider: models.ProviderLambdaLabs, Name: "gpu_1x_h100_pcie", GPUKind: "H100", GPUCount: 1, VCPU: 26, RAMGB: 200},
		{Provider: models.ProviderRunPod, Name: "NVIDIA A100 80GB", GPUKind: "A100", GPUCount: 1, VCPU: 12, RAMGB: 83},
		{Provider: models.ProviderRunPod, Name: "NVIDIA RTX 4090", GPUKind: "RTX 4090", GPUCount: 1, VCPU: 8, RAMGB: 32},
	}

	return NewStatic(providerInfos, instanceTypes)
}
