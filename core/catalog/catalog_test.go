package catalog

import (
	"testing"

	"cloudarb/core/models"
)

func TestStaticCatalogLookups(t *testing.T) {
	cat := DefaultStatic()

	it, ok := cat.Instance(models.ProviderAWS, "p4d.24xlarge")
	if !ok {
		t.Fatal("p4d.24xlarge missing from the static catalog")
	}
	if it.GPUKind != "A100" || it.GPUCount != 8 {
		t.Errorf("shape = %s x%d, want A100 x8", it.GPUKind, it.GPUCount)
	}

	if _, ok := cat.Instance(models.ProviderAWS, "no-such-type"); ok {
		t.Error("unknown instance type resolved")
	}

	if !cat.ProviderEnabled(models.ProviderLambdaLabs) {
		t.Error("lambdalabs should be enabled")
	}
	// Providers absent from the catalog stay usable.
	if !cat.ProviderEnabled(models.Provider("newcloud")) {
		t.Error("unregistered providers must default to enabled")
	}
}

func TestStaticCatalogDisabledProvider(t *testing.T) {
	cat := NewStatic([]models.ProviderInfo{
		{ID: "aws", Name: models.ProviderAWS, Enabled: false},
	}, nil)
	if cat.ProviderEnabled(models.ProviderAWS) {
		t.Error("disabled provider reported enabled")
	}
}
