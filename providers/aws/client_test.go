package aws

import (
	"math"
	"testing"
)

func TestParseOnDemandDocument(t *testing.T) {
	doc := []byte(`{
		"product": {"attributes": {"instanceType": "p4d.24xlarge"}},
		"terms": {
			"OnDemand": {
				"ABC.XYZ": {
					"priceDimensions": {
						"ABC.XYZ.6YS6EN2CT7": {
							"unit": "Hrs",
							"pricePerUnit": {"USD": "32.7726000000"}
						}
					}
				}
			}
		}
	}`)

	price, err := parseOnDemandDocument(doc)
	if err != nil {
		t.Fatalf("parseOnDemandDocument: %v", err)
	}
	if math.Abs(price-32.7726) > 1e-9 {
		t.Errorf("price = %v, want 32.7726", price)
	}
}

func TestParseOnDemandDocumentMissingTerms(t *testing.T) {
	price, err := parseOnDemandDocument([]byte(`{"terms": {"OnDemand": {}}}`))
	if err != nil {
		t.Fatalf("parseOnDemandDocument: %v", err)
	}
	if price != 0 {
		t.Errorf("price = %v, want 0 for a document without dimensions", price)
	}
}

func TestParseOnDemandDocumentBadPrice(t *testing.T) {
	doc := []byte(`{
		"terms": {
			"OnDemand": {
				"X": {"priceDimensions": {"Y": {"unit": "Hrs", "pricePerUnit": {"USD": "not-a-number"}}}}
			}
		}
	}`)
	if _, err := parseOnDemandDocument(doc); err == nil {
		t.Fatal("expected a parse error for a malformed price")
	}
}

func TestGPUInstanceBookShapes(t *testing.T) {
	seen := make(map[string]bool)
	for _, gi := range gpuInstanceBook {
		if seen[gi.InstanceType] {
			t.Errorf("duplicate instance type %s", gi.InstanceType)
		}
		seen[gi.InstanceType] = true
		if gi.GPUCount <= 0 {
			t.Errorf("%s: gpu count %d", gi.InstanceType, gi.GPUCount)
		}
		if gi.GPUKind == "" {
			t.Errorf("%s: empty gpu kind", gi.InstanceType)
		}
	}
}
