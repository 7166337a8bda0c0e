package aws

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloudarb/core/models"
	"cloudarb/providers"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	pricingtypes "github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/aws/smithy-go"
	"github.com/bytedance/sonic"
)

// gpuInstance is one row of the GPU instance book: the EC2 instance types
// worth querying and their GPU shape.
type gpuInstance struct {
	InstanceType string
	GPUKind      string
	GPUCount     int
}

// gpuInstanceBook lists the EC2 GPU families the adapter prices.
var gpuInstanceBook = []gpuInstance{
	{"p3.2xlarge", "V100", 1},
	{"p3.8xlarge", "V100", 4},
	{"p3.16xlarge", "V100", 8},
	{"p3dn.24xlarge", "V100", 8},
	{"p4d.24xlarge", "A100", 8},
	{"p5.48xlarge", "H100", 8},
	{"g4dn.xlarge", "T4", 1},
	{"g4dn.12xlarge", "T4", 4},
	{"g5.xlarge", "A10G", 1},
	{"g5.12xlarge", "A10G", 4},
	{"g6.xlarge", "L4", 1},
}

// regionLocations maps region codes to the location names the Pricing API
// filters on.
var regionLocations = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "Europe (Ireland)",
	"eu-central-1":   "Europe (Frankfurt)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
}

// Client is the AWS pricing adapter. On-demand prices come from the Pricing
// API, spot prices from the EC2 spot price history.
type Client struct {
	pricingClient *pricing.Client
	ec2Factory    func(region string) *ec2.Client
	regions       []string
	throttle      providers.Throttle
}

// NewClient creates the AWS adapter for the given regions.
func NewClient(ctx context.Context, regions []string) (*Client, error) {
	// The Pricing API is only served from us-east-1.
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion("us-east-1"))
	if err != nil {
		return nil, err
	}

	return &Client{
		pricingClient: pricing.NewFromConfig(cfg),
		ec2Factory: func(region string) *ec2.Client {
			return ec2.NewFromConfig(cfg, func(o *ec2.Options) { o.Region = region })
		},
		regions:  regions,
		throttle: providers.NewThrottle(2),
	}, nil
}

// Name implements providers.Adapter.
func (c *Client) Name() models.Provider { return models.ProviderAWS }

// Capabilities implements providers.Adapter.
func (c *Client) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		SupportsSpot:         true,
		HasRegionGranularity: true,
		SustainableQPS:       2,
		MinPollInterval:      time.Minute,
	}
}

// FetchPricing queries on-demand and spot prices for every GPU instance
// type in the book across the configured regions.
func (c *Client) FetchPricing(ctx context.Context, filter providers.Filter) ([]models.PricePoint, error) {
	var points []models.PricePoint
	now := time.Now().UTC()

	for _, region := range c.regions {
		if !filter.MatchRegion(region) {
			continue
		}

		spotByType, err := c.fetchSpotPrices(ctx, region, filter)
		if err != nil {
			return nil, err
		}

		for _, gi := range gpuInstanceBook {
			if !filter.MatchKind(gi.GPUKind) {
				continue
			}

			onDemand, err := c.fetchOnDemandPrice(ctx, region, gi.InstanceType)
			if err != nil {
				return nil, err
			}
			if onDemand <= 0 {
				// Instance family not offered in this region.
				continue
			}

			point := models.PricePoint{
				Provider:   models.ProviderAWS,
				Instance:   gi.InstanceType,
				Region:     region,
				GPUKind:    providers.CanonicalGPUKind(gi.GPUKind),
				GPUCount:   gi.GPUCount,
				OnDemand:   onDemand,
				ObservedAt: now,
			}
			if spot, ok := spotByType[gi.InstanceType]; ok && spot > 0 {
				point.Spot = spot
				point.HasSpot = true
			}
			points = append(points, point)
		}
	}

	return points, nil
}

// fetchOnDemandPrice resolves the Linux on-demand $/hr for one instance
// type in one region via the Pricing API.
func (c *Client) fetchOnDemandPrice(ctx context.Context, region, instanceType string) (float64, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return 0, err
	}

	location, ok := regionLocations[region]
	if !ok {
		location = region
	}

	out, err := c.pricingClient.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode: aws.String("AmazonEC2"),
		MaxResults:  aws.Int32(20),
		Filters: []pricingtypes.Filter{
			termMatch("instanceType", instanceType),
			termMatch("location", location),
			termMatch("operatingSystem", "Linux"),
			termMatch("tenancy", "Shared"),
			termMatch("preInstalledSw", "NA"),
			termMatch("capacitystatus", "Used"),
		},
	})
	if err != nil {
		return 0, classify(err)
	}

	for _, doc := range out.PriceList {
		price, perr := parseOnDemandDocument([]byte(doc))
		if perr != nil {
			return 0, perr
		}
		if price > 0 {
			return price, nil
		}
	}
	return 0, nil
}

func termMatch(field, value string) pricingtypes.Filter {
	return pricingtypes.Filter{
		Field: aws.String(field),
		Type:  pricingtypes.FilterTypeTermMatch,
		Value: aws.String(value),
	}
}

// awsPriceDocument mirrors the slice of the Pricing API product document the
// adapter reads.
type awsPriceDocument struct {
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				Unit         string `json:"unit"`
				PricePerUnit struct {
					USD string `json:"USD"`
				} `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

func parseOnDemandDocument(doc []byte) (float64, error) {
	var parsed awsPriceDocument
	if err := sonic.Unmarshal(doc, &parsed); err != nil {
		return 0, providers.ParseError(err, "decode pricing document")
	}

	for _, term := range parsed.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			if dim.PricePerUnit.USD == "" {
				continue
			}
			price, err := strconv.ParseFloat(dim.PricePerUnit.USD, 64)
			if err != nil {
				return 0, providers.ParseError(err, "parse USD price")
			}
			if dim.Unit == "Hrs" || dim.Unit == "" {
				return price, nil
			}
		}
	}
	return 0, nil
}

// fetchSpotPrices returns the most recent spot $/hr per instance type for a
// region from the EC2 spot price history.
func (c *Client) fetchSpotPrices(ctx context.Context, region string, filter providers.Filter) (map[string]float64, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	var types []ec2types.InstanceType
	for _, gi := range gpuInstanceBook {
		if filter.MatchKind(gi.GPUKind) {
			types = append(types, ec2types.InstanceType(gi.InstanceType))
		}
	}
	if len(types) == 0 {
		return map[string]float64{}, nil
	}

	out, err := c.ec2Factory(region).DescribeSpotPriceHistory(ctx, &ec2.DescribeSpotPriceHistoryInput{
		InstanceTypes:       types,
		ProductDescriptions: []string{"Linux/UNIX"},
		StartTime:           aws.Time(time.Now().Add(-time.Hour)),
	})
	if err != nil {
		return nil, classify(err)
	}

	latest := make(map[string]time.Time)
	prices := make(map[string]float64)
	for _, sp := range out.SpotPriceHistory {
		if sp.SpotPrice == nil || sp.Timestamp == nil {
			continue
		}
		it := string(sp.InstanceType)
		if ts, ok := latest[it]; ok && !sp.Timestamp.After(ts) {
			continue
		}
		price, perr := strconv.ParseFloat(*sp.SpotPrice, 64)
		if perr != nil {
			continue
		}
		latest[it] = *sp.Timestamp
		prices[it] = price
	}
	return prices, nil
}

// classify maps AWS SDK errors onto the adapter failure taxonomy.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException", "AuthFailure", "AccessDenied",
			"AccessDeniedException", "ExpiredToken", "ExpiredTokenException",
			"InvalidClientTokenId":
			return providers.AuthFailed(err, "aws credentials rejected")
		}
	}
	return providers.Transient(err, "aws api call")
}
