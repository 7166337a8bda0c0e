package providers

import "strings"

// gpuKindAliases maps the strings providers report to canonical GPU kinds.
// Keys are lowercased with vendor prefixes stripped.
var gpuKindAliases = map[string]string{
	"a100":                "A100",
	"a100-sxm4-40gb":      "A100",
	"a100-sxm4-80gb":      "A100",
	"a100_80gb":           "A100",
	"h100":                "H100",
	"h100-sxm5-80gb":      "H100",
	"h100_pcie":           "H100",
	"v100":                "V100",
	"v100-sxm2-16gb":      "V100",
	"t4":                  "T4",
	"k80":                 "K80",
	"a10g":                "A10G",
	"a10":                 "A10",
	"l4":                  "L4",
	"l40s":                "L40S",
	"rtx a6000":           "RTX A6000",
	"rtx 6000 ada":        "RTX 6000 Ada",
	"rtx 4090":            "RTX 4090",
	"geforce rtx 4090":    "RTX 4090",
	"gh200":               "GH200",
	"mi300x":              "MI300X",
	"amd instinct mi300x": "MI300X",
}

// CanonicalGPUKind maps a provider-reported GPU name to its canonical kind
// ("A100" == "a100" == "NVIDIA A100"). Parenthesized memory/form-factor
// suffixes ("A100 (40 GB SXM4)") are ignored. Unknown names are normalized
// to upper case so they still group consistently across providers.
func CanonicalGPUKind(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "nvidia ")
	s = strings.TrimPrefix(s, "tesla ")
	if i := strings.IndexByte(s, '('); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if canonical, ok := gpuKindAliases[s]; ok {
		return canonical
	}
	if fields := strings.Fields(s); len(fields) > 0 {
		if canonical, ok := gpuKindAliases[fields[0]]; ok {
			return canonical
		}
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}
